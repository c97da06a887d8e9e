package email

import (
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

var bareLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	time.RFC1123,
	time.RFC822,
}

// ParseDate parses a Date header value. A trailing "(TZ)" comment is dropped
// before the second round of layouts is tried.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	noTZParen := value
	if openParen := strings.LastIndex(noTZParen, " ("); openParen != -1 {
		if closeParen := strings.LastIndex(noTZParen, ")"); closeParen > openParen {
			noTZParen = noTZParen[:openParen] + noTZParen[closeParen+1:]
		}
	}
	noTZParen = strings.TrimSpace(noTZParen)
	var lastErr error
	for _, layout := range bareLayouts {
		t, err := time.Parse(layout, noTZParen)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("could not parse date %q: %w", value, lastErr)
}
