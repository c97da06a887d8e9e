package gmail

import "fmt"

// Format selects how much of a message Users.Messages.Get returns.
type Format string

const (
	FormatFull     Format = "full"
	FormatMetadata Format = "metadata"
	FormatMinimal  Format = "minimal"
	FormatRaw      Format = "raw"
)

// ParseFormat validates a format name from configuration.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatFull, FormatMetadata, FormatMinimal, FormatRaw:
		return f, nil
	}
	return "", fmt.Errorf("unknown message format %q (want full, metadata, minimal or raw)", s)
}

// MessageRef identifies a message as returned by a list call.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Page is one page of a message listing. An empty NextPageToken means the
// provider has nothing further.
type Page struct {
	Messages      []MessageRef
	NextPageToken string
}
