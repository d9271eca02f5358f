package backend

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

const prefsFile = "prefs.json"

var _ KVStore = (*JSONFileStore)(nil)

// JSONFileStore keeps prefs in memory and rewrites a JSON file on every update.
type JSONFileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenJSONFileStore loads the store from path. A missing file is an empty store.
func OpenJSONFileStore(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{path: path, values: make(map[string]string)}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	} else if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &s.values); err != nil {
		return nil, err
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

func (s *JSONFileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *JSONFileStore) Set(entries map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.values[k] = v
	}
	return s.flush()
}

func (s *JSONFileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return s.flush()
}

func (s *JSONFileStore) Close() error {
	return nil
}

// must be called with s.mu held
func (s *JSONFileStore) flush() error {
	b, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

var _ KVStore = (*MemoryStore)(nil)

// MemoryStore is a KVStore that is not persisted anywhere.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(entries map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStore) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// OpenPrefsStore opens the store backend named by cfg in dir.
func OpenPrefsStore(backend, dir string) (KVStore, error) {
	switch backend {
	case PrefsBackendSQLite:
		return OpenSQLiteStore(filepath.Join(dir, prefsDBFile))
	default:
		return OpenJSONFileStore(filepath.Join(dir, prefsFile))
	}
}
