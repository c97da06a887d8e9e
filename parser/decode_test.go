package parser

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDecodeBase64URLRoundTrip(t *testing.T) {
	texts := []string{
		"",
		"a",
		"ab",
		"abc",
		"abcd",
		"hello, world",
		"ünïcödé ✓",
		"needs ~~~ url-safe ??? alphabet >>>",
	}
	for _, text := range texts {
		encoded := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte(text)), "=")
		got, err := DecodeBase64URL(encoded)
		if err != nil {
			t.Errorf("DecodeBase64URL(%q) (len %% 4 = %d): %v", encoded, len(encoded)%4, err)
			continue
		}
		if got != text {
			t.Errorf("DecodeBase64URL(%q)=%q, want %q", encoded, got, text)
		}
	}
}

func TestDecodeBase64URLCoversAllRemainders(t *testing.T) {
	seen := map[int]bool{}
	for n := 0; n < 8; n++ {
		encoded := base64.RawURLEncoding.EncodeToString([]byte(strings.Repeat("x", n)))
		seen[len(encoded)%4] = true
		if _, err := DecodeBase64URL(encoded); err != nil {
			t.Errorf("DecodeBase64URL(%q): %v", encoded, err)
		}
	}
	for _, r := range []int{0, 2, 3} {
		if !seen[r] {
			t.Errorf("remainder %d not exercised", r)
		}
	}
}

func TestDecodeBase64URLInvalid(t *testing.T) {
	for _, in := range []string{"A", "AAAAA", "abc$", "ab+/"} {
		if got, err := DecodeBase64URL(in); err == nil {
			t.Errorf("DecodeBase64URL(%q)=%q, want error", in, got)
		}
	}
}

func TestDecodeBase64URLAcceptsPadding(t *testing.T) {
	got, err := DecodeBase64URL(base64.URLEncoding.EncodeToString([]byte("ab")))
	if err != nil || got != "ab" {
		t.Errorf("DecodeBase64URL(padded)=%q, %v", got, err)
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	got, err := DecodeBase64URL(base64.RawURLEncoding.EncodeToString([]byte{'o', 'k', 0xff}))
	if err != nil {
		t.Fatal(err)
	}
	if got != "ok\uFFFD" {
		t.Errorf("got %q, want replacement character", got)
	}
}
