// Package dataset appends labeled emails to a training dataset file.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bassamadnan/mailsort/email"
)

const (
	MinLabel = 0
	MaxLabel = 4
)

var (
	ErrInvalidLabel  = errors.New("label must be between 0 and 4")
	ErrUnknownFormat = errors.New("unknown dataset format")
	ErrClosed        = errors.New("dataset writer closed")
)

type Format string

const (
	CSV    Format = "csv"
	JSON   Format = "json"
	SQLite Format = "sqlite"
)

// ParseFormat accepts a format name. An empty name infers the format from
// the extension of path.
func ParseFormat(name, path string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return CSV, nil
	case "json", "jsonl":
		return JSON, nil
	case "sqlite", "sqlite3", "db":
		return SQLite, nil
	case "":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			return CSV, nil
		case ".json", ".jsonl":
			return JSON, nil
		case ".db", ".sqlite", ".sqlite3":
			return SQLite, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Record is one labeled email.
type Record struct {
	ID        uuid.UUID `json:"id" db:"id"`
	MessageID string    `json:"message_id" db:"message_id"`
	ThreadID  string    `json:"thread_id" db:"thread_id"`
	Date      string    `json:"date" db:"date"`
	Sender    string    `json:"sender" db:"sender"`
	Receiver  string    `json:"receiver" db:"receiver"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	Keywords  []string  `json:"keywords" db:"-"`
	Label     int       `json:"label" db:"label"`
	LabeledAt time.Time `json:"labeled_at" db:"labeled_at"`
}

// NewRecord builds a record from a parsed email and its label.
func NewRecord(e *email.Email, keywords []string, label int) Record {
	return Record{
		MessageID: e.ID,
		ThreadID:  e.ThreadID,
		Date:      e.Date,
		Sender:    e.Sender,
		Receiver:  e.Receiver,
		Subject:   e.Subject,
		Body:      e.Text(),
		Keywords:  keywords,
		Label:     label,
	}
}

// prepare validates r and fills in its id and timestamp.
func prepare(r Record) (Record, error) {
	if r.Label < MinLabel || r.Label > MaxLabel {
		return r, fmt.Errorf("%w: got %d", ErrInvalidLabel, r.Label)
	}
	if r.MessageID == "" {
		return r, errors.New("record has no message id")
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.LabeledAt.IsZero() {
		r.LabeledAt = time.Now().UTC()
	}
	return r, nil
}

// Writer appends records to a dataset. Implementations are safe for
// concurrent use.
type Writer interface {
	Append(ctx context.Context, r Record) error
	// Labeled reports whether the message already has a record.
	Labeled(ctx context.Context, messageID string) (bool, error)
	Close() error
}

// Open opens or creates the dataset at path.
func Open(path string, format Format) (Writer, error) {
	switch format {
	case CSV:
		return openCSV(path)
	case JSON:
		return openJSONL(path)
	case SQLite:
		return openSQLite(path)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
