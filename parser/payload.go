package parser

import (
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// Shape is the validated structure of a message payload: either a
// SinglePart or a MultiPart.
type Shape interface {
	isShape()
}

// Part is one leaf body part with its still-encoded data.
type Part struct {
	MimeType string
	Charset  string
	Data     string // base64url, possibly without padding
}

// SinglePart is a payload whose body sits directly on the payload.
type SinglePart struct {
	Part Part
}

// MultiPart is a payload with a parts list, flattened to its leaves in
// payload order.
type MultiPart struct {
	Parts []Part
}

func (SinglePart) isShape() {}
func (MultiPart) isShape()  {}

// ShapeOf validates payload. A payload with a parts list is multipart;
// otherwise the payload itself is the single part. Nested multipart/*
// containers are walked depth first and parts carrying a filename are
// attachments, which are not part of the body.
func ShapeOf(payload *gmail.MessagePart) (Shape, error) {
	if payload == nil {
		return nil, ErrNoPayload
	}
	if len(payload.Parts) > 0 {
		var leaves []Part
		if err := flatten(payload.Parts, &leaves); err != nil {
			return nil, err
		}
		return MultiPart{Parts: leaves}, nil
	}
	part, err := leafOf(payload)
	if err != nil {
		return nil, err
	}
	return SinglePart{Part: part}, nil
}

func flatten(parts []*gmail.MessagePart, leaves *[]Part) error {
	for _, p := range parts {
		if p == nil {
			continue
		}
		if len(p.Parts) > 0 {
			if err := flatten(p.Parts, leaves); err != nil {
				return err
			}
			continue
		}
		if p.Filename != "" {
			continue
		}
		leaf, err := leafOf(p)
		if err != nil {
			return err
		}
		*leaves = append(*leaves, leaf)
	}
	return nil
}

func leafOf(p *gmail.MessagePart) (Part, error) {
	if p.Body == nil || p.Body.Data == "" {
		return Part{}, &MissingBodyError{MimeType: p.MimeType}
	}
	return Part{
		MimeType: p.MimeType,
		Charset:  charsetOf(p.Headers),
		Data:     p.Body.Data,
	}, nil
}

func charsetOf(headers []*gmail.MessagePartHeader) string {
	for _, h := range headers {
		if h == nil || !strings.EqualFold(h.Name, "Content-Type") {
			continue
		}
		_, params, err := mime.ParseMediaType(h.Value)
		if err != nil {
			return ""
		}
		return strings.ToLower(params["charset"])
	}
	return ""
}
