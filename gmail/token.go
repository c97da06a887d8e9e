package gmail

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/99designs/keyring"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a TokenStore that has nothing saved yet.
var ErrNoToken = errors.New("no saved oauth token")

// TokenStore persists the OAuth token between runs.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// FileTokenStore keeps the token as JSON on disk.
type FileTokenStore struct {
	Path string
}

func (s FileTokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("opening token file %s: %w", s.Path, err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token file %s: %w", s.Path, err)
	}
	return tok, nil
}

func (s FileTokenStore) Save(tok *oauth2.Token) error {
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating token directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to save oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(tok)
}

const keyringService = "mailsort"

// KeyringTokenStore keeps the token in the system keyring.
type KeyringTokenStore struct {
	ring keyring.Keyring
	key  string
}

// NewKeyringTokenStore opens the platform keyring, falling back to an
// encrypted file under dir when no native backend is available.
func NewKeyringTokenStore(dir, key string) (*KeyringTokenStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringTokenStoreFrom(ring, key), nil
}

// NewKeyringTokenStoreFrom wraps an already opened keyring.
func NewKeyringTokenStoreFrom(ring keyring.Keyring, key string) *KeyringTokenStore {
	return &KeyringTokenStore{ring: ring, key: key}
}

func (s *KeyringTokenStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("getting token %q from keyring: %w", s.key, err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, tok); err != nil {
		return nil, fmt.Errorf("decoding token %q: %w", s.key, err)
	}
	return tok, nil
}

func (s *KeyringTokenStore) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := s.ring.Set(keyring.Item{Key: s.key, Data: data}); err != nil {
		return fmt.Errorf("setting token %q in keyring: %w", s.key, err)
	}
	return nil
}

// savingTokenSource writes refreshed tokens back to the store so the next
// run does not need to go through the browser flow again.
type savingTokenSource struct {
	src   oauth2.TokenSource
	store TokenStore
	onErr func(error)

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil && s.onErr != nil {
			s.onErr(err)
		}
	}
	return tok, nil
}
