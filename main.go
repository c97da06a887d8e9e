package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/bassamadnan/mailsort/config"
	"github.com/bassamadnan/mailsort/dataset"
	"github.com/bassamadnan/mailsort/gmail"
	"github.com/bassamadnan/mailsort/keywords"
	"github.com/bassamadnan/mailsort/parser"
	"github.com/bassamadnan/mailsort/pipeline"
	"github.com/bassamadnan/mailsort/retriever"
	"github.com/bassamadnan/mailsort/tui"
)

const tokenKey = "gmail-token"

func main() {
	settings, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Usage of mailsort:\n%s", config.Usage())
			return
		}
		fmt.Fprintln(os.Stderr, "mailsort:", err)
		os.Exit(1)
	}

	logFile, err := os.OpenFile(settings.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0660)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mailsort: failed to open log file: %v\n", err)
		os.Exit(1)
	}
	logger := log.NewWithOptions(logFile, log.Options{ReportTimestamp: true, Prefix: "mailsort"})
	if settings.Verbose {
		logger.SetLevel(log.DebugLevel)
	}
	logger.Info("application starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, settings, logger)
	cancel()
	if err != nil {
		logger.Error("run failed", "err", err)
		fmt.Fprintln(os.Stderr, "mailsort:", err)
		if gmail.IsAuthError(err) {
			fmt.Fprintf(os.Stderr, "mailsort: authorization failed; remove the saved token (%s) to sign in again\n", settings.Token.Path)
		}
		logFile.Close()
		os.Exit(1)
	}
	logger.Info("exiting")
	logFile.Close()
}

func run(ctx context.Context, s *config.Settings, logger *log.Logger) error {
	format, err := gmail.ParseFormat(s.Format)
	if err != nil {
		return &config.Error{Key: "format", Err: err}
	}
	dsFormat, err := dataset.ParseFormat(s.Dataset.Format, s.Dataset.Path)
	if err != nil {
		return &config.Error{Key: "dataset.format", Err: err}
	}
	tokens, err := tokenStore(s)
	if err != nil {
		return err
	}

	session, err := gmail.Open(ctx, gmail.Config{
		CredentialsFile: s.CredentialsFile,
		Tokens:          tokens,
		Query:           s.Query,
		Logger:          logger.WithPrefix("gmail"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Gmail session: %w", err)
	}
	defer session.Close()

	address, err := session.Profile(ctx)
	if err != nil {
		return err
	}
	logger.Info("signed in", "address", address)

	filters, err := config.NewManager(s.FiltersPath)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.Dataset.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating dataset directory: %w", err)
		}
	}
	writer, err := dataset.Open(s.Dataset.Path, dsFormat)
	if err != nil {
		return err
	}
	defer writer.Close()

	fetcher := retriever.New(session,
		retriever.WithCount(s.Count),
		retriever.WithFormat(format),
		retriever.WithMetadataHeaders(s.MetadataHeaders),
		retriever.WithMaxPages(s.MaxPages),
		retriever.WithConcurrency(s.Concurrency),
		retriever.WithLogger(logger.WithPrefix("retriever")),
	)
	p := parser.New(
		parser.WithHeaders(s.Headers...),
		parser.WithBodyTypes(s.BodyTypes...),
		parser.RestrictBodyTypes(s.RestrictBodyTypes),
		parser.SubjectFromHeader(s.SubjectFromHeader),
	)

	kwOpts := keywords.Options{
		Highlight: s.Keywords.Highlight,
		TopN:      s.Keywords.TopN,
		NgramMin:  s.Keywords.NgramMin,
		NgramMax:  s.Keywords.NgramMax,
	}
	if len(s.Keywords.StopWords) > 0 {
		kwOpts.StopWords = s.Keywords.StopWords
	}

	pl := pipeline.New(fetcher, p,
		pipeline.WithExtractor(keywords.NewFrequency(), kwOpts),
		pipeline.WithFilter(filters),
		pipeline.WithLabelIndex(writer),
		pipeline.WithLogger(logger.WithPrefix("pipeline")),
	)
	res, err := pl.Run(ctx, s.IDs)
	if err != nil {
		return err
	}
	for _, f := range res.Failures {
		logger.Warn("message skipped", "id", f.ID, "stage", f.Stage, "err", f.Err)
	}
	logger.Info("run summary", "summary", res.Summary.String())

	final, err := tui.Run(ctx, tui.Config{
		Items:     res.Items,
		Summary:   res.Summary,
		Dataset:   writer,
		Filters:   filters,
		Highlight: kwOpts.Highlight,
		Logger:    logger.WithPrefix("tui"),
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running labeling screen: %w", err)
	}
	labeled, skipped, ignored := final.Tally()
	logger.Info("session finished", "labeled", labeled, "skipped", skipped, "ignored", ignored)
	return nil
}

func tokenStore(s *config.Settings) (gmail.TokenStore, error) {
	switch s.Token.Store {
	case "keyring":
		store, err := gmail.NewKeyringTokenStore(filepath.Dir(s.Token.Path), tokenKey)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return gmail.FileTokenStore{Path: s.Token.Path}, nil
	}
}
