package pairing

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// stateDocument is the on-disk persisted-state shape: a stable
// UUID v4 unique_id plus the list of paired client ids.
type stateDocument struct {
	UniqueID string   `toml:"unique_id"`
	Clients  []string `toml:"clients"`
}

// FileStore implements ClientStore backed by a TOML file, saved after every
// write.
type FileStore struct {
	mu       sync.Mutex
	path     string
	doc      stateDocument
	indexed  map[string]struct{}
}

// LoadFileStore reads path, creating a fresh document with a new UUID v4
// unique_id if it does not exist.
func LoadFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, indexed: make(map[string]struct{})}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		store.doc = stateDocument{UniqueID: uuid.NewString()}
		if err := store.save(); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	if err := toml.Unmarshal(raw, &store.doc); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	if store.doc.UniqueID == "" {
		store.doc.UniqueID = uuid.NewString()
	}
	for _, id := range store.doc.Clients {
		store.indexed[id] = struct{}{}
	}

	return store, nil
}

// UniqueID returns the host's stable UUID v4 identifier.
func (s *FileStore) UniqueID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.UniqueID
}

// HasClient reports whether id is in the persisted client set.
func (s *FileStore) HasClient(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.indexed[id]
	return ok
}

// AddClient adds id to the persisted client set and saves the file.
func (s *FileStore) AddClient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexed[id]; ok {
		return nil
	}
	s.indexed[id] = struct{}{}
	s.doc.Clients = append(s.doc.Clients, id)
	return s.save()
}

// RemoveClient removes id from the persisted client set (used by the
// /unpair endpoint) and saves the file.
func (s *FileStore) RemoveClient(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexed[id]; !ok {
		return fmt.Errorf("pairing: client %q is not paired", id)
	}
	delete(s.indexed, id)

	remaining := s.doc.Clients[:0]
	for _, existing := range s.doc.Clients {
		if existing != id {
			remaining = append(remaining, existing)
		}
	}
	s.doc.Clients = remaining
	return s.save()
}

func (s *FileStore) save() error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	raw, err := toml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("marshal state file: %w", err)
	}
	return os.WriteFile(s.path, raw, 0o600)
}
