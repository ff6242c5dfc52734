package keys

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EnvConfigDir overrides the settings directory, mainly for tests.
const EnvConfigDir = "IMGEDIT_CONFIG_DIR"

var (
	ErrKeyNotFound   = errors.New("no key stored for provider")
	ErrAPIKeyMissing = errors.New("API key required")
)

// Store keeps API keys in keys.json inside the settings directory.
type Store struct {
	configDir string
}

type KeyEntry struct {
	Key string `json:"key"`
}

// Keys is the keys.json document, keyed by provider name.
type Keys map[string]KeyEntry

func NewStore() (*Store, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return NewStoreAt(dir), nil
}

func NewStoreAt(dir string) *Store {
	return &Store{configDir: dir}
}

// ConfigDir returns the imgedit settings directory: $IMGEDIT_CONFIG_DIR if
// set, otherwise imgedit/ under the platform user config directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "imgedit"), nil
}

func (s *Store) Dir() string {
	return s.configDir
}

func (s *Store) Path() string {
	return filepath.Join(s.configDir, "keys.json")
}

func (s *Store) load() (Keys, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(Keys), nil
		}
		return nil, err
	}

	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if keys == nil {
		keys = make(Keys)
	}
	return keys, nil
}

func (s *Store) save(keys Keys) error {
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}

	// Owner read/write only.
	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write keys.json: %w", err)
	}
	return nil
}

func (s *Store) Set(provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrAPIKeyMissing
	}

	keys, err := s.load()
	if err != nil {
		return err
	}
	keys[provider] = KeyEntry{Key: key}
	return s.save(keys)
}

// Get returns the stored key, or "" when none is stored.
func (s *Store) Get(provider string) (string, error) {
	keys, err := s.load()
	if err != nil {
		return "", err
	}
	return keys[provider].Key, nil
}

func (s *Store) Delete(provider string) error {
	keys, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := keys[provider]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, provider)
	}

	delete(keys, provider)
	return s.save(keys)
}

// List returns the providers with stored keys, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(keys))
	for provider := range keys {
		providers = append(providers, provider)
	}
	sort.Strings(providers)
	return providers, nil
}

// MaskKey returns a masked version of the key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// Resolve picks the API key for provider in priority order: the explicit
// key, the stored key, then the envVar environment variable. It also
// reports where the key came from.
func (s *Store) Resolve(explicitKey, provider, envVar string) (string, string, error) {
	if explicitKey != "" {
		return explicitKey, "command-line flag", nil
	}

	if stored, err := s.Get(provider); err == nil && stored != "" {
		return stored, "stored key (" + s.Path() + ")", nil
	}

	if envKey := os.Getenv(envVar); envKey != "" {
		return envKey, fmt.Sprintf("environment variable (%s)", envVar), nil
	}

	return "", "", fmt.Errorf("%w: run 'imgedit keys set' or set %s", ErrAPIKeyMissing, envVar)
}

// GetAPIKey resolves a key against the default store.
func GetAPIKey(explicitKey, provider, envVar string) (string, string, error) {
	store, err := NewStore()
	if err != nil {
		store = NewStoreAt("")
	}
	return store.Resolve(explicitKey, provider, envVar)
}
