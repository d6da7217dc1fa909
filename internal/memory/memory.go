// Package memory is the key/value scratchpad agents share within a workspace.
// It persists to agent_memory.json and stays disabled until Enable is called.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/philjestin/studiomode/internal/journal"
)

// Store is the shared agent memory.
type Store struct {
	path    string
	journal *journal.Journal
	enabled bool
	data    map[string]json.RawMessage
	mu      sync.RWMutex
}

// NewStore returns a disabled store backed by path. j may be nil.
func NewStore(path string, j *journal.Journal) *Store {
	return &Store{path: path, journal: j, data: map[string]json.RawMessage{}}
}

// Enable loads the file and turns on reads and writes. A corrupt file starts fresh.
func (s *Store) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = true
	s.data = map[string]json.RawMessage{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.data = map[string]json.RawMessage{}
	}
}

// Enabled reports whether the store is active.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Write stores value under key and persists the file. Disabled stores ignore writes.
func (s *Store) Write(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", key, err)
	}
	s.data[key] = raw
	if err := s.save(); err != nil {
		return err
	}
	s.note("write " + key)
	return nil
}

// Read decodes the value under key into dst. It returns false when disabled or missing.
func (s *Store) Read(key string, dst any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return false, nil
	}
	raw, ok := s.data[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode memory %s: %w", key, err)
	}
	s.note("read " + key)
	return true, nil
}

// Keys lists stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Features collects every "feature" string found anywhere in stored values.
func (s *Store) Features() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return nil
	}

	seen := map[string]bool{}
	var out []string
	for _, k := range sortedKeys(s.data) {
		var v any
		if err := json.Unmarshal(s.data[k], &v); err != nil {
			continue
		}
		collectFeatures(v, seen, &out)
	}
	return out
}

func collectFeatures(v any, seen map[string]bool, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if f, ok := t["feature"].(string); ok && f != "" && !seen[f] {
			seen[f] = true
			*out = append(*out, f)
		}
		for _, k := range sortedKeys(t) {
			collectFeatures(t[k], seen, out)
		}
	case []any:
		for _, item := range t {
			collectFeatures(item, seen, out)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func (s *Store) note(action string) {
	if s.journal != nil {
		s.journal.Log("Memory", action)
	}
}
