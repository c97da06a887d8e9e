package gmail

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

func testToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		TokenType:    "Bearer",
		RefreshToken: "refresh",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func checkToken(t *testing.T, got *oauth2.Token) {
	t.Helper()
	want := testToken()
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken ||
		got.TokenType != want.TokenType || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("token=%+v, want %+v", got, want)
	}
}

func TestFileTokenStore(t *testing.T) {
	s := FileTokenStore{Path: filepath.Join(t.TempDir(), "tokens", "token.json")}
	if _, err := s.Load(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load() on empty store err=%v, want ErrNoToken", err)
	}
	if err := s.Save(testToken()); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	checkToken(t, got)
}

func TestKeyringTokenStore(t *testing.T) {
	s := NewKeyringTokenStoreFrom(keyring.NewArrayKeyring(nil), "oauth-token")
	if _, err := s.Load(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load() on empty keyring err=%v, want ErrNoToken", err)
	}
	if err := s.Save(testToken()); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	checkToken(t, got)
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

type countingStore struct{ saves int }

func (s *countingStore) Load() (*oauth2.Token, error) { return nil, ErrNoToken }
func (s *countingStore) Save(*oauth2.Token) error     { s.saves++; return nil }

func TestSavingTokenSourceSavesOnChange(t *testing.T) {
	store := &countingStore{}
	src := &savingTokenSource{src: staticSource{testToken()}, store: store, last: "older"}
	for i := 0; i < 3; i++ {
		if _, err := src.Token(); err != nil {
			t.Fatal(err)
		}
	}
	if store.saves != 1 {
		t.Errorf("saves=%d, want 1", store.saves)
	}
}
