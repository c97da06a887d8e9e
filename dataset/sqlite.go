package dataset

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type sqliteWriter struct {
	db *sqlx.DB
}

func openSQLite(path string) (*sqliteWriter, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &sqliteWriter{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *sqliteWriter) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// Append stores r, replacing an earlier label for the same message.
func (s *sqliteWriter) Append(ctx context.Context, r Record) error {
	r, err := prepare(r)
	if err != nil {
		return err
	}
	kws := r.Keywords
	if kws == nil {
		kws = []string{}
	}
	encoded, err := json.Marshal(kws)
	if err != nil {
		return fmt.Errorf("marshaling keywords for %s: %w", r.MessageID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO labeled_emails (
			id, message_id, thread_id, date, sender, receiver,
			subject, body, keywords, label, labeled_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			label = excluded.label,
			keywords = excluded.keywords,
			labeled_at = excluded.labeled_at`,
		r.ID.String(), r.MessageID, r.ThreadID, r.Date, r.Sender, r.Receiver,
		r.Subject, r.Body, string(encoded), r.Label, r.LabeledAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending record %s: %w", r.MessageID, err)
	}
	return nil
}

func (s *sqliteWriter) Labeled(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM labeled_emails WHERE message_id = ?", messageID)
	if err != nil {
		return false, fmt.Errorf("checking label for %s: %w", messageID, err)
	}
	return n > 0, nil
}

func (s *sqliteWriter) Close() error {
	return s.db.Close()
}
