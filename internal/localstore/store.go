// Package localstore is the on-disk analog of browser local storage: one
// JSON file, loaded synchronously on open and rewritten on every write.
package localstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Store persists small key/value settings plus the session token pair.
type Store struct {
	path string

	mu   sync.Mutex
	data fileData
}

type fileData struct {
	AccessToken  string            `json:"access_token,omitempty"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
}

// Open loads the store at path, creating parent directories as needed. A
// missing file is an empty store, not an error.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("localstore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	s := &Store{path: path, data: fileData{Settings: map[string]string{}}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, err
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		// A corrupt settings file should not brick the client; start fresh.
		s.data = fileData{Settings: map[string]string{}}
	}
	if s.data.Settings == nil {
		s.data.Settings = map[string]string{}
	}
	return s, nil
}

// DefaultPath places the store under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "wafra", "store.json")
}

func (s *Store) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// SaveTokens persists the session token pair.
func (s *Store) SaveTokens(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AccessToken = access
	s.data.RefreshToken = refresh
	return s.flushLocked()
}

// LoadTokens returns the persisted token pair, empty when none.
func (s *Store) LoadTokens() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.AccessToken, s.data.RefreshToken, nil
}

// ClearTokens drops the persisted token pair.
func (s *Store) ClearTokens() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.AccessToken = ""
	s.data.RefreshToken = ""
	return s.flushLocked()
}

// SetSetting writes one settings key.
func (s *Store) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Settings[key] = value
	return s.flushLocked()
}

// Setting reads one settings key.
func (s *Store) Setting(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data.Settings[key]
	return v, ok
}
