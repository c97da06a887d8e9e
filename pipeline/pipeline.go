// Package pipeline runs one triage pass: fetch messages, parse them, check
// senders, drop filtered and already-labeled messages and rank keywords.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/bassamadnan/mailsort/email"
	"github.com/bassamadnan/mailsort/gmail"
	"github.com/bassamadnan/mailsort/keywords"
	"github.com/bassamadnan/mailsort/retriever"
)

type Fetcher interface {
	FetchMessages(ctx context.Context, ids []string) (retriever.Batch, error)
}

type Parser interface {
	Parse(msg *gmailapi.Message) (*email.Email, error)
}

// Filter hides messages from labeling. config.Manager satisfies it.
type Filter interface {
	Match(sender, subject, body string) (string, bool)
}

// LabelIndex knows which messages already have a label. dataset.Writer
// satisfies it.
type LabelIndex interface {
	Labeled(ctx context.Context, messageID string) (bool, error)
}

const (
	StageFetch = "fetch"
	StageParse = "parse"
)

// Item is one message ready for labeling.
type Item struct {
	Email    *email.Email
	Keywords []keywords.Keyword
	// VerifyErr is set when the sender address failed verification. The
	// item is still labeled.
	VerifyErr error
}

func (it Item) Verified() bool { return it.VerifyErr == nil }

// Failure is a message dropped at the fetch or parse stage.
type Failure struct {
	ID    string
	Stage string
	Err   error
}

// Summary counts what happened to each message of a run.
type Summary struct {
	Fetched        int
	Parsed         int
	FetchFailed    int
	ParseFailed    int
	Unverified     int
	Filtered       int
	AlreadyLabeled int
	Exhausted      bool
}

func (s Summary) String() string {
	str := fmt.Sprintf("fetched %d, parsed %d, fetch failures %d, parse failures %d, unverified senders %d",
		s.Fetched, s.Parsed, s.FetchFailed, s.ParseFailed, s.Unverified)
	if s.Filtered > 0 {
		str += fmt.Sprintf(", filtered %d", s.Filtered)
	}
	if s.AlreadyLabeled > 0 {
		str += fmt.Sprintf(", already labeled %d", s.AlreadyLabeled)
	}
	if s.Exhausted {
		str += " (mailbox exhausted)"
	}
	return str
}

// Result is the outcome of Run.
type Result struct {
	Items    []Item
	Failures []Failure
	Summary  Summary
}

type Pipeline struct {
	fetcher   Fetcher
	parser    Parser
	extractor keywords.Extractor
	kwOpts    keywords.Options
	filter    Filter
	labels    LabelIndex
	logger    *log.Logger
}

type Option func(*Pipeline)

// WithExtractor ranks keywords for every item.
func WithExtractor(e keywords.Extractor, opts keywords.Options) Option {
	return func(p *Pipeline) {
		p.extractor = e
		p.kwOpts = opts
	}
}

func WithFilter(f Filter) Option { return func(p *Pipeline) { p.filter = f } }

func WithLabelIndex(l LabelIndex) Option { return func(p *Pipeline) { p.labels = l } }

func WithLogger(l *log.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// New returns a Pipeline over f and parser.
func New(f Fetcher, parser Parser, opts ...Option) *Pipeline {
	p := &Pipeline{fetcher: f, parser: parser}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p
}

// Run fetches ids (or the newest messages when ids is empty) and prepares
// them for labeling. Per-message failures are collected in the result; an
// authentication failure or a failed listing ends the run.
func (p *Pipeline) Run(ctx context.Context, ids []string) (*Result, error) {
	batch, err := p.fetcher.FetchMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	res.Summary.Exhausted = batch.Exhausted
	for _, r := range batch.Results {
		if r.Err != nil {
			if gmail.IsAuthError(r.Err) {
				return nil, r.Err
			}
			res.Summary.FetchFailed++
			res.Failures = append(res.Failures, Failure{ID: r.ID, Stage: StageFetch, Err: r.Err})
			continue
		}
		res.Summary.Fetched++

		e, err := p.parser.Parse(r.Message)
		if err != nil {
			p.logger.Warn("unable to parse message", "id", r.ID, "err", err)
			res.Summary.ParseFailed++
			res.Failures = append(res.Failures, Failure{ID: r.ID, Stage: StageParse, Err: err})
			continue
		}
		res.Summary.Parsed++

		item := Item{Email: e}
		if err := e.Verify(); err != nil {
			p.logger.Debug("unverifiable sender", "id", e.ID, "sender", e.Sender)
			res.Summary.Unverified++
			item.VerifyErr = err
		}

		if p.filter != nil {
			if reason, ok := p.filter.Match(e.Sender, e.Subject, e.Text()); ok {
				p.logger.Debug("message filtered", "id", e.ID, "reason", reason)
				res.Summary.Filtered++
				continue
			}
		}
		if p.labels != nil {
			done, err := p.labels.Labeled(ctx, e.ID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				p.logger.Warn("unable to check dataset", "id", e.ID, "err", err)
			}
			if done {
				res.Summary.AlreadyLabeled++
				continue
			}
		}

		if p.extractor != nil {
			kws, err := p.extractor.Extract(e.Text(), p.kwOpts)
			if err != nil {
				p.logger.Warn("keyword extraction failed", "id", e.ID, "err", err)
			}
			item.Keywords = kws
		}
		res.Items = append(res.Items, item)
	}

	p.logger.Info("run complete",
		"fetched", res.Summary.Fetched,
		"parsed", res.Summary.Parsed,
		"fetch_failures", res.Summary.FetchFailed,
		"parse_failures", res.Summary.ParseFailed,
		"unverified", res.Summary.Unverified,
		"filtered", res.Summary.Filtered,
		"already_labeled", res.Summary.AlreadyLabeled,
	)
	return res, nil
}
