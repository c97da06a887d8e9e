package email

import (
	"errors"
	"testing"
	"time"
)

func TestVerify(t *testing.T) {
	tests := []struct {
		sender string
		ok     bool
	}{
		{"user.name@example.co.uk", true},
		{"user@example.com", true},
		{"first_last-x@mail-host.org", true},
		{"a1.b2@sub.example.io", true},
		{"not-an-email", false},
		{"user@@example.com", false},
		{"", false},
		{"user@example.c", false},
		{".user@example.com", false},
		{"user@example", false},
		{"<user@example.com>", false},
	}
	for _, test := range tests {
		e := &Email{Sender: test.sender}
		err := e.Verify()
		if test.ok && err != nil {
			t.Errorf("Verify(%q)=%v, want nil", test.sender, err)
		}
		if !test.ok {
			if err == nil {
				t.Errorf("Verify(%q)=nil, want error", test.sender)
				continue
			}
			var senderErr *UnverifiableSenderError
			if !errors.As(err, &senderErr) {
				t.Errorf("Verify(%q) error %T, want *UnverifiableSenderError", test.sender, err)
			} else if senderErr.Address != test.sender {
				t.Errorf("Verify(%q) address=%q", test.sender, senderErr.Address)
			}
			if !errors.Is(err, ErrUnverifiableSender) {
				t.Errorf("Verify(%q) does not wrap ErrUnverifiableSender", test.sender)
			}
		}
	}
}

func TestAttachmentsNotImplemented(t *testing.T) {
	e := &Email{}
	got, err := e.Attachments()
	if !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("Attachments() err=%v, want ErrNotImplemented", err)
	}
	if got != nil {
		t.Errorf("Attachments()=%v, want nil", got)
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
		want string
	}{
		{"empty", nil, ""},
		{"plain wins", map[string]string{"text/html": "h", "text/plain": "p"}, "p"},
		{"html fallback", map[string]string{"text/html": "h", "application/json": "{}"}, "h"},
		{"sorted fallback", map[string]string{"text/x-b": "b", "text/x-a": "a"}, "a"},
	}
	for _, test := range tests {
		e := &Email{Body: test.body}
		if got := e.Text(); got != test.want {
			t.Errorf("%s: Text()=%q, want %q", test.name, got, test.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2023, time.May, 2, 10, 4, 5, 0, time.FixedZone("", -7*3600))
	tests := []string{
		"Tue, 02 May 2023 10:04:05 -0700",
		"Tue, 2 May 2023 10:04:05 -0700",
		"Tue, 2 May 2023 10:04:05 -0700 (PDT)",
		"2 May 2023 10:04:05 -0700",
		"  Tue, 2 May 2023 10:04:05 -0700  ",
	}
	for _, in := range tests {
		got, err := ParseDate(in)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseDate(%q)=%v, want %v", in, got, want)
		}
	}

	if _, err := ParseDate("yesterday-ish"); err == nil {
		t.Error("ParseDate(garbage)=nil error")
	}
}
