// Package parser turns Gmail message payloads into email.Email records.
// Parsing is pure: no remote calls, and every failure is a typed error.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/mailsort/email"
)

var (
	// ErrParse is matched by every error Parse returns.
	ErrParse     = errors.New("parse failed")
	ErrNoPayload = errors.New("message has no payload")
	ErrEmptyBody = errors.New("message body has no parts")
)

// RequiredHeaders are extracted from every message whatever headers are
// configured. A missing or blank value fails the parse.
var RequiredHeaders = []string{"From", "To", "Date"}

var (
	DefaultHeaders   = []string{"From", "To", "Date"}
	DefaultBodyTypes = []string{"text/plain", "text/html"}
)

// ParseError wraps any failure for one message.
type ParseError struct {
	MessageID string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing message %s: %v", e.MessageID, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// MissingHeaderError names a header the payload lacks, or a required header
// whose value is blank.
type MissingHeaderError struct {
	Name string
}

func (e *MissingHeaderError) Error() string {
	return fmt.Sprintf("missing required header %q", e.Name)
}

// MissingBodyError names the MIME type of a part without body data.
type MissingBodyError struct {
	MimeType string
}

func (e *MissingBodyError) Error() string {
	return fmt.Sprintf("part %q has no body data", e.MimeType)
}

// DecodeError reports a part whose body could not be decoded.
type DecodeError struct {
	MimeType string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding part %q: %v", e.MimeType, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Parser holds the header and body-type selection used by Parse.
type Parser struct {
	headers           []string
	bodyTypes         []string
	restrictBodyTypes bool
	subjectFromHeader bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithHeaders sets extra headers that must be present on every message.
// RequiredHeaders are always extracted as well.
func WithHeaders(names ...string) Option {
	return func(p *Parser) { p.headers = names }
}

// WithBodyTypes sets the MIME types considered valid body parts.
func WithBodyTypes(types ...string) Option {
	return func(p *Parser) { p.bodyTypes = types }
}

// RestrictBodyTypes drops parts whose MIME type is not a valid body type.
// By default every part is kept.
func RestrictBodyTypes(on bool) Option {
	return func(p *Parser) { p.restrictBodyTypes = on }
}

// SubjectFromHeader uses the Subject header instead of the snippet when the
// message has one.
func SubjectFromHeader(on bool) Option {
	return func(p *Parser) { p.subjectFromHeader = on }
}

// New returns a Parser with the default headers and body types.
func New(opts ...Option) *Parser {
	p := &Parser{
		headers:   DefaultHeaders,
		bodyTypes: DefaultBodyTypes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse parses msg with the given header names and valid body types and
// the default keep-all body policy.
func Parse(msg *gmail.Message, desiredHeaders, validBodyTypes []string) (*email.Email, error) {
	return New(WithHeaders(desiredHeaders...), WithBodyTypes(validBodyTypes...)).Parse(msg)
}

// Parse converts one message into an Email. It never returns a partially
// filled record together with a nil error.
func (p *Parser) Parse(msg *gmail.Message) (*email.Email, error) {
	if msg == nil {
		return nil, &ParseError{Err: ErrNoPayload}
	}
	e, err := p.parse(msg)
	if err != nil {
		return nil, &ParseError{MessageID: msg.Id, Err: err}
	}
	return e, nil
}

func (p *Parser) parse(msg *gmail.Message) (*email.Email, error) {
	if msg.Payload == nil {
		return nil, ErrNoPayload
	}
	headers, err := p.extractHeaders(msg.Payload.Headers)
	if err != nil {
		return nil, err
	}
	shape, err := ShapeOf(msg.Payload)
	if err != nil {
		return nil, err
	}
	body, err := p.extractBody(shape)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}

	sender := NormalizeAddress(headers["From"])
	if sender == "" {
		return nil, &MissingHeaderError{Name: "From"}
	}
	receiver := NormalizeAddress(headers["To"])
	if receiver == "" {
		return nil, &MissingHeaderError{Name: "To"}
	}

	subject := msg.Snippet
	if p.subjectFromHeader {
		if s, ok := headerValue(msg.Payload.Headers, "Subject"); ok {
			subject = s
		}
	}
	return &email.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Date:     headers["Date"],
		Sender:   sender,
		Receiver: receiver,
		Subject:  subject,
		Body:     body,
		Headers:  headers,
	}, nil
}

func (p *Parser) extractHeaders(raw []*gmail.MessagePartHeader) (map[string]string, error) {
	headers := make(map[string]string, len(RequiredHeaders)+len(p.headers))
	for _, name := range RequiredHeaders {
		v, ok := headerValue(raw, name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil, &MissingHeaderError{Name: name}
		}
		headers[name] = v
	}
	for _, name := range p.headers {
		if _, done := headers[name]; done {
			continue
		}
		v, ok := headerValue(raw, name)
		if !ok {
			return nil, &MissingHeaderError{Name: name}
		}
		headers[name] = v
	}
	return headers, nil
}

// headerValue returns the last value of the named header, matched without
// regard to case.
func headerValue(raw []*gmail.MessagePartHeader, name string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, h := range raw {
		if h != nil && strings.EqualFold(h.Name, name) {
			value, found = h.Value, true
		}
	}
	return value, found
}

func (p *Parser) extractBody(shape Shape) (map[string]string, error) {
	var parts []Part
	switch s := shape.(type) {
	case SinglePart:
		parts = []Part{s.Part}
	case MultiPart:
		parts = s.Parts
	default:
		return nil, fmt.Errorf("unrecognized payload shape %T", shape)
	}

	body := make(map[string]string, len(parts))
	for _, part := range parts {
		if p.restrictBodyTypes && !p.validBodyType(part.MimeType) {
			continue
		}
		raw, err := decodeBytes(part.Data)
		if err != nil {
			return nil, &DecodeError{MimeType: part.MimeType, Err: err}
		}
		text := toUTF8(raw, part.Charset)
		if strings.Contains(part.MimeType, "html") {
			if text, err = ReduceHTML(text); err != nil {
				return nil, &DecodeError{MimeType: part.MimeType, Err: err}
			}
		}
		body[part.MimeType] = text
	}
	return body, nil
}

func (p *Parser) validBodyType(mimeType string) bool {
	for _, t := range p.bodyTypes {
		if strings.EqualFold(t, mimeType) {
			return true
		}
	}
	return false
}

// NormalizeAddress extracts the address from "Display Name <addr@host>" or
// a bare "addr@host": the last whitespace-separated token without its
// angle brackets.
func NormalizeAddress(value string) string {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return ""
	}
	addr := fields[len(fields)-1]
	return strings.TrimRight(strings.TrimLeft(addr, "<"), ">")
}
