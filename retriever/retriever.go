// Package retriever collects message ids from a paginated Gmail listing and
// fetches the corresponding payloads.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/mailsort/gmail"
)

const (
	DefaultCount           = 10
	DefaultMaxPages        = 100
	DefaultMetadataHeaders = "full"
)

// ErrInvalidCount is returned when fewer than one message is requested.
var ErrInvalidCount = errors.New("desired message count must be positive")

// Session is the remote mailbox the fetcher reads from. *gmail.Client
// satisfies it.
type Session interface {
	ListMessageIDs(ctx context.Context, pageToken string) (gmail.Page, error)
	GetMessage(ctx context.Context, id string, format gmail.Format, metadataHeaders string) (*gmailapi.Message, error)
}

var _ Session = (*gmail.Client)(nil)

// PageLimitError reports that the listing still had a continuation token
// after MaxPages list calls.
type PageLimitError struct {
	Pages int
	Refs  []gmail.MessageRef
}

func (e *PageLimitError) Error() string {
	return fmt.Sprintf("gave up after %d pages with %d message ids", e.Pages, len(e.Refs))
}

// Listing is the result of FetchMessageIDs. Exhausted is set when the
// provider ran out of pages before the requested count was reached; Refs
// then holds everything it returned.
type Listing struct {
	Refs      []gmail.MessageRef
	Exhausted bool
}

// Result is the outcome of fetching one message.
type Result struct {
	ID      string
	Message *gmailapi.Message
	Err     error
}

// Batch holds one Result per requested id, in request order.
type Batch struct {
	Results   []Result
	Exhausted bool // discovery returned fewer ids than configured
}

// Messages returns the successfully fetched payloads in order.
func (b Batch) Messages() []*gmailapi.Message {
	msgs := make([]*gmailapi.Message, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Err == nil {
			msgs = append(msgs, r.Message)
		}
	}
	return msgs
}

// Failed returns the results whose fetch failed.
func (b Batch) Failed() []Result {
	var failed []Result
	for _, r := range b.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Fetcher reads messages from a Session.
type Fetcher struct {
	session         Session
	count           int
	format          gmail.Format
	metadataHeaders string
	maxPages        int
	concurrency     int
	logger          *log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCount sets how many messages FetchMessages discovers when no ids are given.
func WithCount(n int) Option { return func(f *Fetcher) { f.count = n } }

// WithFormat sets the format passed to every get call.
func WithFormat(format gmail.Format) Option { return func(f *Fetcher) { f.format = format } }

// WithMetadataHeaders sets the header-detail value passed to every get call.
func WithMetadataHeaders(h string) Option { return func(f *Fetcher) { f.metadataHeaders = h } }

// WithMaxPages bounds the number of list calls per FetchMessageIDs.
func WithMaxPages(n int) Option { return func(f *Fetcher) { f.maxPages = n } }

// WithConcurrency allows up to n get calls in flight.
func WithConcurrency(n int) Option { return func(f *Fetcher) { f.concurrency = n } }

func WithLogger(l *log.Logger) Option { return func(f *Fetcher) { f.logger = l } }

// New returns a Fetcher reading from session.
func New(session Session, opts ...Option) *Fetcher {
	f := &Fetcher{
		session:         session,
		count:           DefaultCount,
		format:          gmail.FormatFull,
		metadataHeaders: DefaultMetadataHeaders,
		maxPages:        DefaultMaxPages,
		concurrency:     1,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.New(io.Discard)
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}
	return f
}

// FetchMessageIDs returns the first n message refs in provider order.
func (f *Fetcher) FetchMessageIDs(ctx context.Context, n int) (Listing, error) {
	if n <= 0 {
		return Listing{}, fmt.Errorf("%w: %d", ErrInvalidCount, n)
	}

	var refs []gmail.MessageRef
	pageToken := ""
	for pages := 0; ; pages++ {
		if f.maxPages > 0 && pages >= f.maxPages {
			return Listing{}, &PageLimitError{Pages: pages, Refs: refs}
		}
		if err := ctx.Err(); err != nil {
			return Listing{}, err
		}

		page, err := f.session.ListMessageIDs(ctx, pageToken)
		if err != nil {
			return Listing{}, fmt.Errorf("listing page %d: %w", pages+1, err)
		}
		refs = append(refs, page.Messages...)
		if len(refs) >= n {
			return Listing{Refs: refs[:n]}, nil
		}
		if page.NextPageToken == "" {
			f.logger.Info("message listing exhausted", "wanted", n, "got", len(refs))
			return Listing{Refs: refs, Exhausted: true}, nil
		}
		pageToken = page.NextPageToken
	}
}

// FetchMessages fetches the given ids in order, or discovers the newest
// configured count when ids is empty. Individual fetch failures are recorded
// in the batch; only a failed discovery is returned as an error.
func (f *Fetcher) FetchMessages(ctx context.Context, ids []string) (Batch, error) {
	var batch Batch
	if len(ids) == 0 {
		listing, err := f.FetchMessageIDs(ctx, f.count)
		if err != nil {
			return Batch{}, err
		}
		batch.Exhausted = listing.Exhausted
		ids = make([]string, len(listing.Refs))
		for i, ref := range listing.Refs {
			ids[i] = ref.ID
		}
	}

	batch.Results = make([]Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := f.session.GetMessage(gctx, id, f.format, f.metadataHeaders)
			if err != nil {
				f.logger.Warn("unable to retrieve message", "id", id, "err", err)
				err = fmt.Errorf("fetching message %s: %w", id, err)
			}
			batch.Results[i] = Result{ID: id, Message: msg, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return batch, nil
}
