package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

// jsonlWriter writes one JSON object per line.
type jsonlWriter struct {
	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	seen   map[string]bool
	closed bool
}

func openJSONL(path string) (*jsonlWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}

	seen := make(map[string]bool)
	dec := json.NewDecoder(f)
	for {
		var r Record
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading dataset %s: %w", path, err)
		}
		seen[r.MessageID] = true
	}

	return &jsonlWriter{f: f, enc: json.NewEncoder(f), seen: seen}, nil
}

func (j *jsonlWriter) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := prepare(r)
	if err != nil {
		return err
	}
	if r.Keywords == nil {
		r.Keywords = []string{}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.enc.Encode(r); err != nil {
		return fmt.Errorf("appending record %s: %w", r.MessageID, err)
	}
	j.seen[r.MessageID] = true
	return nil
}

func (j *jsonlWriter) Labeled(_ context.Context, messageID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seen[messageID], nil
}

func (j *jsonlWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.f.Close()
}
