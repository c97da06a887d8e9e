package parser

import (
	"encoding/base64"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// DecodeBase64URL decodes URL-safe base64 that may be missing its trailing
// padding.
func DecodeBase64URL(s string) (string, error) {
	b, err := decodeBytes(s)
	if err != nil {
		return "", err
	}
	return toUTF8(b, ""), nil
}

func decodeBytes(s string) ([]byte, error) {
	if r := len(s) % 4; r != 0 {
		s += strings.Repeat("=", 4-r)
	}
	return base64.URLEncoding.DecodeString(s)
}

// toUTF8 converts b from charset to UTF-8. Unknown charsets and invalid
// sequences degrade to U+FFFD rather than failing the message.
func toUTF8(b []byte, charset string) string {
	switch charset {
	case "", "utf-8", "utf8", "us-ascii":
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}
