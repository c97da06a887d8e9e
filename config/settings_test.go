package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func baseArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	return []string{
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	unsetEnv(t, CredentialsEnv)
	_, err := Load(baseArgs(t))
	var cfgErr *Error
	if !errors.As(err, &cfgErr) || cfgErr.Key != CredentialsEnv {
		t.Fatalf("err=%v, want config error for %s", err, CredentialsEnv)
	}
	if !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err does not match ErrMissingCredentials")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(CredentialsEnv, "client_secret.json")
	s, err := Load(baseArgs(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.CredentialsFile != "client_secret.json" {
		t.Errorf("CredentialsFile=%q", s.CredentialsFile)
	}
	if s.Count != 10 || s.Format != "full" || s.MetadataHeaders != "full" || s.MaxPages != 100 || s.Concurrency != 1 {
		t.Errorf("fetch settings=%+v", s)
	}
	if !reflect.DeepEqual(s.Headers, []string{"From", "To", "Date"}) {
		t.Errorf("Headers=%v", s.Headers)
	}
	if s.Dataset.Path != "labeled_emails.csv" || s.Token.Store != "file" {
		t.Errorf("Dataset=%+v Token=%+v", s.Dataset, s.Token)
	}
	if s.Keywords.TopN != 5 || s.Keywords.NgramMax != 2 || !s.Keywords.Highlight {
		t.Errorf("Keywords=%+v", s.Keywords)
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv(CredentialsEnv, "client_secret.json")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "mailsort.yaml")
	yaml := "count: 25\nmax_pages: 7\nconcurrency: 3\ndataset:\n  path: labels.db\n  format: sqlite\nkeywords:\n  top_n: 8\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MAILSORT_MAX_PAGES", "9")
	t.Setenv("MAILSORT_CONCURRENCY", "4")

	s, err := Load([]string{
		"--config", cfgPath,
		"--env-file", filepath.Join(dir, "missing.env"),
		"--concurrency", "2",
		"--ids", "a1,b2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Count != 25 {
		t.Errorf("Count=%d, want 25 from file", s.Count)
	}
	if s.MaxPages != 9 {
		t.Errorf("MaxPages=%d, want 9 from env", s.MaxPages)
	}
	if s.Concurrency != 2 {
		t.Errorf("Concurrency=%d, want 2 from flag", s.Concurrency)
	}
	if s.Dataset.Path != "labels.db" || s.Dataset.Format != "sqlite" || s.Keywords.TopN != 8 {
		t.Errorf("nested settings: Dataset=%+v Keywords=%+v", s.Dataset, s.Keywords)
	}
	if !reflect.DeepEqual(s.IDs, []string{"a1", "b2"}) {
		t.Errorf("IDs=%v", s.IDs)
	}
}

func TestLoadDotEnv(t *testing.T) {
	unsetEnv(t, CredentialsEnv)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte(CredentialsEnv+"=from_dotenv.json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(CredentialsEnv) })

	s, err := Load([]string{"--config", filepath.Join(dir, "missing.yaml"), "--env-file", envPath})
	if err != nil {
		t.Fatal(err)
	}
	if s.CredentialsFile != "from_dotenv.json" {
		t.Errorf("CredentialsFile=%q", s.CredentialsFile)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv(CredentialsEnv, "client_secret.json")
	tests := []struct {
		args []string
		key  string
	}{
		{[]string{"--count", "0"}, "count"},
		{[]string{"--max-pages", "-1"}, "max_pages"},
		{[]string{"--token-store", "vault"}, "token.store"},
		{[]string{"--no-such-flag"}, "flags"},
	}
	for _, test := range tests {
		_, err := Load(append(baseArgs(t), test.args...))
		var cfgErr *Error
		if !errors.As(err, &cfgErr) || cfgErr.Key != test.key {
			t.Errorf("Load(%v) err=%v, want config error for %s", test.args, err, test.key)
		}
	}
}

func TestLoadHelp(t *testing.T) {
	t.Setenv(CredentialsEnv, "client_secret.json")
	if _, err := Load([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("err=%v, want pflag.ErrHelp", err)
	}
	if Usage() == "" {
		t.Error("empty usage")
	}
}
