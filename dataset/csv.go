package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var csvHeader = []string{
	"id", "message_id", "thread_id", "date", "sender", "receiver",
	"subject", "body", "keywords", "label", "labeled_at",
}

const keywordSep = "; "

type csvWriter struct {
	mu     sync.Mutex
	f      *os.File
	w      *csv.Writer
	seen   map[string]bool
	closed bool
}

func openCSV(path string) (*csvWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	seen, err := readCSVMessageIDs(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	cw := &csvWriter{f: f, w: csv.NewWriter(f), seen: seen}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		if err := cw.writeRow(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	return cw, nil
}

func readCSVMessageIDs(f *os.File) (map[string]bool, error) {
	seen := make(map[string]bool)
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return seen, nil
	}
	if err != nil {
		return nil, err
	}
	col := -1
	for i, name := range header {
		if name == "message_id" {
			col = i
		}
	}
	if col < 0 {
		return nil, errors.New("header has no message_id column")
	}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			return seen, nil
		}
		if err != nil {
			return nil, err
		}
		if col < len(row) {
			seen[row[col]] = true
		}
	}
}

func (c *csvWriter) writeRow(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvWriter) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := prepare(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	err = c.writeRow([]string{
		r.ID.String(),
		r.MessageID,
		r.ThreadID,
		r.Date,
		r.Sender,
		r.Receiver,
		r.Subject,
		r.Body,
		strings.Join(r.Keywords, keywordSep),
		strconv.Itoa(r.Label),
		r.LabeledAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("appending record %s: %w", r.MessageID, err)
	}
	c.seen[r.MessageID] = true
	return nil
}

func (c *csvWriter) Labeled(_ context.Context, messageID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[messageID], nil
}

func (c *csvWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
