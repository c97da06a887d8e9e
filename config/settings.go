// Package config loads run settings and the message filter rules.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CredentialsEnv names the OAuth client secret file.
const CredentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

var ErrMissingCredentials = errors.New("local path to credentials not defined")

// Error is a configuration problem. The run cannot start.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type DatasetSettings struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type TokenSettings struct {
	Store string `mapstructure:"store"` // file or keyring
	Path  string `mapstructure:"path"`
}

type KeywordSettings struct {
	TopN      int      `mapstructure:"top_n"`
	NgramMin  int      `mapstructure:"ngram_min"`
	NgramMax  int      `mapstructure:"ngram_max"`
	Highlight bool     `mapstructure:"highlight"`
	StopWords []string `mapstructure:"stop_words"`
}

// Settings is everything a run needs.
type Settings struct {
	CredentialsFile string `mapstructure:"-"`

	Count             int      `mapstructure:"count"`
	Format            string   `mapstructure:"format"`
	MetadataHeaders   string   `mapstructure:"metadata_headers"`
	MaxPages          int      `mapstructure:"max_pages"`
	Concurrency       int      `mapstructure:"concurrency"`
	Query             string   `mapstructure:"query"`
	IDs               []string `mapstructure:"ids"`
	Headers           []string `mapstructure:"headers"`
	BodyTypes         []string `mapstructure:"body_types"`
	RestrictBodyTypes bool     `mapstructure:"restrict_body_types"`
	SubjectFromHeader bool     `mapstructure:"subject_from_header"`

	Dataset  DatasetSettings `mapstructure:"dataset"`
	Token    TokenSettings   `mapstructure:"token"`
	Keywords KeywordSettings `mapstructure:"keywords"`

	FiltersPath string `mapstructure:"filters_path"`
	LogFile     string `mapstructure:"log_file"`
	Verbose     bool   `mapstructure:"verbose"`
}

var defaults = map[string]any{
	"count":               10,
	"format":              "full",
	"metadata_headers":    "full",
	"max_pages":           100,
	"concurrency":         1,
	"query":               "",
	"ids":                 []string{},
	"headers":             []string{"From", "To", "Date"},
	"body_types":          []string{"text/plain", "text/html"},
	"restrict_body_types": false,
	"subject_from_header": false,
	"dataset.path":        "labeled_emails.csv",
	"dataset.format":      "",
	"token.store":         "file",
	"token.path":          "token.json",
	"keywords.top_n":      5,
	"keywords.ngram_min":  1,
	"keywords.ngram_max":  2,
	"keywords.highlight":  true,
	"keywords.stop_words": []string{},
	"filters_path":        "config/filters.json",
	"log_file":            "mailsort.log",
	"verbose":             false,
}

// flag name -> settings key
var flagKeys = map[string]string{
	"count":               "count",
	"format":              "format",
	"metadata-headers":    "metadata_headers",
	"max-pages":           "max_pages",
	"concurrency":         "concurrency",
	"query":               "query",
	"ids":                 "ids",
	"headers":             "headers",
	"body-types":          "body_types",
	"restrict-body-types": "restrict_body_types",
	"subject-from-header": "subject_from_header",
	"dataset":             "dataset.path",
	"dataset-format":      "dataset.format",
	"token-store":         "token.store",
	"token-path":          "token.path",
	"top-n":               "keywords.top_n",
	"highlight":           "keywords.highlight",
	"filters":             "filters_path",
	"log-file":            "log_file",
	"verbose":             "verbose",
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("mailsort", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)
	flags.String("config", "mailsort.yaml", "settings file")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("credentials", "", "OAuth client secret file (overrides $"+CredentialsEnv+")")

	flags.IntP("count", "n", 10, "number of messages to fetch")
	flags.String("format", "full", "message format: full, metadata, minimal or raw")
	flags.String("metadata-headers", "full", "metadata headers requested with each message")
	flags.Int("max-pages", 100, "upper bound on listing pages")
	flags.Int("concurrency", 1, "parallel message fetches")
	flags.StringP("query", "q", "", "Gmail search query applied to listings")
	flags.StringSlice("ids", nil, "fetch these message ids instead of listing")
	flags.StringSlice("headers", []string{"From", "To", "Date"}, "headers every message must carry")
	flags.StringSlice("body-types", []string{"text/plain", "text/html"}, "valid body MIME types")
	flags.Bool("restrict-body-types", false, "drop body parts that are not a valid body type")
	flags.Bool("subject-from-header", false, "use the Subject header instead of the snippet")
	flags.StringP("dataset", "o", "labeled_emails.csv", "dataset file")
	flags.String("dataset-format", "", "csv, json or sqlite (default: from the file extension)")
	flags.String("token-store", "file", "where the OAuth token is kept: file or keyring")
	flags.String("token-path", "token.json", "token file, or keyring directory for the file backend")
	flags.Int("top-n", 5, "keywords shown per message")
	flags.Bool("highlight", true, "highlight keywords in the preview")
	flags.String("filters", "config/filters.json", "filter rules file")
	flags.String("log-file", "mailsort.log", "log file")
	flags.BoolP("verbose", "v", false, "debug logging")
	return flags
}

// Load reads settings from, in increasing priority: defaults, the settings
// file, MAILSORT_* environment variables and command-line flags. A .env file
// is loaded first; the credentials path is required.
func Load(args []string) (*Settings, error) {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, &Error{Key: "flags", Err: err}
	}

	envFile, _ := flags.GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Key: "env-file", Err: err}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("MAILSORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, &Error{Key: key, Err: err}
		}
	}

	path, _ := flags.GetString("config")
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, &Error{Key: "config", Err: fmt.Errorf("reading %s: %w", path, err)}
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, &Error{Key: "config", Err: fmt.Errorf("parsing %s: %w", path, err)}
	}

	s.CredentialsFile, _ = flags.GetString("credentials")
	if s.CredentialsFile == "" {
		s.CredentialsFile = os.Getenv(CredentialsEnv)
	}
	if s.CredentialsFile == "" {
		return nil, &Error{Key: CredentialsEnv, Err: ErrMissingCredentials}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch {
	case s.Count <= 0:
		return &Error{Key: "count", Err: fmt.Errorf("must be positive, got %d", s.Count)}
	case s.MaxPages <= 0:
		return &Error{Key: "max_pages", Err: fmt.Errorf("must be positive, got %d", s.MaxPages)}
	case s.Concurrency <= 0:
		return &Error{Key: "concurrency", Err: fmt.Errorf("must be positive, got %d", s.Concurrency)}
	case s.Token.Store != "file" && s.Token.Store != "keyring":
		return &Error{Key: "token.store", Err: fmt.Errorf("unknown store %q", s.Token.Store)}
	case s.Keywords.NgramMin < 1 || s.Keywords.NgramMax < s.Keywords.NgramMin:
		return &Error{Key: "keywords", Err: fmt.Errorf("bad n-gram range (%d, %d)", s.Keywords.NgramMin, s.Keywords.NgramMax)}
	}
	return nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}
