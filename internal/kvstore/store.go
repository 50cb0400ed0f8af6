// Package kvstore is a tiny persisted key-value store for user state such
// as the currently selected session.
package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/KaramelBytes/mvlens-cli/internal/fsutil"
	"github.com/spf13/afero"
)

// Store keeps JSON values in a single file. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	data map[string]json.RawMessage
}

// Open loads the store at path. A missing or unreadable file starts empty.
func Open(fsys afero.Fs, path string) (*Store, error) {
	s := &Store{fs: fsys, path: path, data: map[string]json.RawMessage{}}
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", path, err)
	}
	return s, nil
}

// Get decodes the value for key into v. It reports whether the key existed.
func (s *Store) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores v under key and persists the store.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flush()
}

// Delete removes key and persists the store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flush()
}

func (s *Store) flush() error {
	b, err := fsutil.PrettyJSON(s.data)
	if err != nil {
		return err
	}
	return fsutil.SafeWriteFile(s.fs, s.path, b)
}
