package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store owns the persisted configuration document. All mutations go through
// a copy-then-persist-then-swap cycle so that the in-memory document and the
// file on disk never diverge silently: if the write fails, memory keeps the
// previous document and the caller gets the error.
type Store struct {
	path string

	mu        sync.RWMutex
	doc       Document
	listeners []func(Document)

	// lastWrite holds the bytes of the most recent save so the file watcher
	// can tell our own writes apart from external edits.
	lastWriteMu sync.Mutex
	lastWrite   []byte
}

// Open loads the configuration from path, falling back to the built-in
// defaults when the file does not exist or cannot be parsed.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var doc Document
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			log.Error().Err(jsonErr).Str("path", path).Msg("Config file unreadable, using defaults")
			s.doc = defaultDocument()
		} else {
			doc.normalize()
			s.doc = doc
		}
	case os.IsNotExist(err):
		s.doc = defaultDocument()
		if saveErr := s.save(s.doc); saveErr != nil {
			return nil, fmt.Errorf("write default config: %w", saveErr)
		}
		log.Info().Str("path", path).Msg("Created default config")
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	return s, nil
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns a deep-copy snapshot of the current document.
func (s *Store) Get() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Replace persists doc and swaps it in as the current configuration.
// The in-memory document is left untouched if the write fails.
func (s *Store) Replace(doc Document) error {
	doc.normalize()

	s.mu.Lock()
	if err := s.save(doc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Mutate applies fn to a copy of the current document and persists the result.
// Mutations are serialized; the swap only happens on a successful write.
func (s *Store) Mutate(fn func(*Document)) error {
	s.mu.Lock()
	doc := s.doc.Clone()
	fn(&doc)
	doc.normalize()
	if err := s.save(doc); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Reset restores the built-in default configuration.
func (s *Store) Reset() error {
	return s.Replace(defaultDocument())
}

// Export returns the document as indented JSON for download.
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

// Import replaces the configuration with a previously exported document.
func (s *Store) Import(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid config format: %w", err)
	}
	return s.Replace(doc)
}

// OnReload registers a callback invoked with a snapshot after the watcher
// picks up an external edit of the config file. Mutations made through the
// store itself do not fire it; their callers already know what changed.
func (s *Store) OnReload(fn func(Document)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// reload re-reads the file after an external edit.
func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	s.lastWriteMu.Lock()
	own := string(data) == string(s.lastWrite)
	s.lastWriteMu.Unlock()
	if own {
		return nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid config format: %w", err)
	}
	doc.normalize()

	s.mu.Lock()
	s.doc = doc
	snapshot := s.doc.Clone()
	listeners := append([]func(Document){}, s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
	return nil
}

// save must be called with s.mu held (or before the store is shared).
func (s *Store) save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	s.lastWriteMu.Lock()
	s.lastWrite = data
	s.lastWriteMu.Unlock()
	return nil
}
