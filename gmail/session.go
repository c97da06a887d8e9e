package gmail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const defaultUser = "me"

// Config describes how to open an authenticated Gmail session.
type Config struct {
	CredentialsFile string
	Scopes          []string
	Tokens          TokenStore
	User            string
	Query           string // Gmail search syntax applied to listings, e.g. "in:inbox -in:draft"

	// Authorize turns the consent URL into an authorization code. Defaults
	// to printing the URL and reading the code from stdin.
	Authorize func(ctx context.Context, authURL string) (string, error)
	Logger    *log.Logger
}

// Client is an authenticated Gmail session. It must be closed when the run ends.
type Client struct {
	srv        *gmail.Service
	httpClient *http.Client
	user       string
	query      string
	cb         *gobreaker.CircuitBreaker
	logger     *log.Logger

	mu     sync.Mutex
	closed bool
}

// Open runs the installed-app OAuth flow if no token is saved, then builds
// the Gmail service.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.CredentialsFile == "" {
		return nil, errors.New("no client secret file configured")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("no token store configured")
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmail.GmailReadonlyScope}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	tok, err := cfg.Tokens.Load()
	switch {
	case errors.Is(err, ErrNoToken):
		authorize := cfg.Authorize
		if authorize == nil {
			authorize = promptForCode
		}
		tok, err = tokenFromWeb(ctx, oauthConfig, authorize)
		if err != nil {
			return nil, err
		}
		if err := cfg.Tokens.Save(tok); err != nil {
			return nil, err
		}
		logger.Info("saved new oauth token")
	case err != nil:
		return nil, err
	}

	ts := &savingTokenSource{
		src:   oauthConfig.TokenSource(ctx, tok),
		store: cfg.Tokens,
		last:  tok.AccessToken,
		onErr: func(err error) { logger.Warn("could not persist refreshed token", "err", err) },
	}
	httpClient := oauth2.NewClient(ctx, ts)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	c := NewFromService(srv, httpClient, logger)
	if cfg.User != "" {
		c.user = cfg.User
	}
	c.query = cfg.Query
	return c, nil
}

// NewFromService wraps an existing service. httpClient may be nil.
func NewFromService(srv *gmail.Service, httpClient *http.Client, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		// a missing message is the caller's problem, not the API's
		IsSuccessful: func(err error) bool { return err == nil || IsNotFound(err) },
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		srv:        srv,
		httpClient: httpClient,
		user:       defaultUser,
		cb:         cb,
		logger:     logger,
	}
}

func tokenFromWeb(ctx context.Context, config *oauth2.Config, authorize func(context.Context, string) (string, error)) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	authCode, err := authorize(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("unable to read authorization code: %w", err)
	}
	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return nil, &AuthError{Op: "token exchange", Err: err}
	}
	return tok, nil
}

func promptForCode(_ context.Context, authURL string) (string, error) {
	fmt.Printf("Go to the following link in your browser then type the "+
		"authorization code: \n%v\n", authURL)
	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		return "", err
	}
	return authCode, nil
}

// Profile returns the email address of the authenticated account.
func (c *Client) Profile(ctx context.Context) (string, error) {
	res, err := c.execute("get profile", func() (interface{}, error) {
		return c.srv.Users.GetProfile(c.user).Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return res.(*gmail.Profile).EmailAddress, nil
}

// ListMessageIDs returns one page of message references, newest first.
// An empty pageToken requests the first page.
func (c *Client) ListMessageIDs(ctx context.Context, pageToken string) (Page, error) {
	call := c.srv.Users.Messages.List(c.user).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	if c.query != "" {
		call = call.Q(c.query)
	}
	res, err := c.execute("list messages", func() (interface{}, error) {
		return call.Do()
	})
	if err != nil {
		return Page{}, err
	}
	resp := res.(*gmail.ListMessagesResponse)
	page := Page{
		Messages:      make([]MessageRef, 0, len(resp.Messages)),
		NextPageToken: resp.NextPageToken,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	c.logger.Debug("listed messages", "count", len(page.Messages), "more", page.NextPageToken != "")
	return page, nil
}

// GetMessage fetches one message. format and metadataHeaders are passed to
// the API unchanged; an empty metadataHeaders is omitted.
func (c *Client) GetMessage(ctx context.Context, id string, format Format, metadataHeaders string) (*gmail.Message, error) {
	call := c.srv.Users.Messages.Get(c.user, id).Format(string(format)).Context(ctx)
	if metadataHeaders != "" {
		call = call.MetadataHeaders(metadataHeaders)
	}
	res, err := c.execute("get message "+id, func() (interface{}, error) {
		return call.Do()
	})
	if err != nil {
		return nil, err
	}
	return res.(*gmail.Message), nil
}

func (c *Client) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}
	res, err := c.cb.Execute(fn)
	if err != nil {
		return nil, classify(op, err)
	}
	return res, nil
}

// Close releases the session's connections. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
	c.logger.Debug("gmail session closed")
	return nil
}
