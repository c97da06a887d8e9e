package email

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotImplemented is returned by accessors for features that are not built yet.
	ErrNotImplemented = errors.New("not implemented")
	// ErrUnverifiableSender is wrapped by UnverifiableSenderError.
	ErrUnverifiableSender = errors.New("unverifiable sender address")
)

var senderPattern = regexp.MustCompile(`^([A-Za-z0-9]+[._-])*[A-Za-z0-9]+@[A-Za-z0-9-]+(\.[A-Za-z]{2,})+$`)

// UnverifiableSenderError carries the address that failed Verify.
type UnverifiableSenderError struct {
	Address string
}

func (e *UnverifiableSenderError) Error() string {
	return fmt.Sprintf("email address %q not verifiable", e.Address)
}

func (e *UnverifiableSenderError) Unwrap() error { return ErrUnverifiableSender }

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename string
	MimeType string
	Size     int64
}

// Email is the normalized form of one Gmail message.
type Email struct {
	ID       string
	ThreadID string
	Date     string // Date header as reported by the provider
	Sender   string
	Receiver string
	Subject  string
	Body     map[string]string // MIME type -> text, HTML already reduced to plaintext
	Headers  map[string]string
}

// Verify checks that the sender looks like an email address. It is never
// called implicitly.
func (e *Email) Verify() error {
	if !senderPattern.MatchString(e.Sender) {
		return &UnverifiableSenderError{Address: e.Sender}
	}
	return nil
}

// Attachments is not supported; it always fails with ErrNotImplemented.
func (e *Email) Attachments() ([]Attachment, error) {
	return nil, fmt.Errorf("attachments: %w", ErrNotImplemented)
}

// ParsedDate interprets Date using the layouts mail servers commonly emit.
func (e *Email) ParsedDate() (time.Time, error) {
	return ParseDate(e.Date)
}

// Text returns the most readable body: text/plain first, then a reduced HTML
// entry, then whatever comes first in key order.
func (e *Email) Text() string {
	if len(e.Body) == 0 {
		return ""
	}
	if s, ok := e.Body["text/plain"]; ok {
		return s
	}
	keys := make([]string, 0, len(e.Body))
	for k := range e.Body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.Contains(k, "html") {
			return e.Body[k]
		}
	}
	return e.Body[keys[0]]
}

func (e *Email) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "date: %s\n", e.Date)
	fmt.Fprintf(&b, "sender: %s\n", e.Sender)
	fmt.Fprintf(&b, "receiver: %s\n", e.Receiver)
	fmt.Fprintf(&b, "subject: %s\n", e.Subject)
	keys := make([]string, 0, len(e.Body))
	for k := range e.Body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "body[%s]:\n%s\n", k, e.Body[k])
	}
	return b.String()
}
