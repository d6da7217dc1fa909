// Package index maintains feature_index.json and project_map.json.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SchemaVersion is the supported version of both files.
const SchemaVersion = 1

// LabelNeedsFix marks features the inspector rejected.
const LabelNeedsFix = "needs_fix"

// Feature is one row of feature_index.json.
type Feature struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Label  string `json:"label,omitempty"`
}

// Index is the contents of feature_index.json.
type Index struct {
	SchemaVersion int       `json:"schema_version"`
	Features      []Feature `json:"features"`
}

// FeatureIndex reads and writes feature_index.json.
type FeatureIndex struct {
	path string
	mu   sync.Mutex
}

// NewFeatureIndex returns an index backed by path.
func NewFeatureIndex(path string) *FeatureIndex {
	return &FeatureIndex{path: path}
}

// Load reads the index. A missing file yields an empty index.
func (f *FeatureIndex) Load() (Index, error) {
	idx := Index{SchemaVersion: SchemaVersion, Features: []Feature{}}
	if err := readJSON(f.path, &idx); err != nil {
		return idx, err
	}
	if idx.Features == nil {
		idx.Features = []Feature{}
	}
	return idx, nil
}

// Save writes the index.
func (f *FeatureIndex) Save(idx Index) error {
	return writeJSON(f.path, idx)
}

// Get returns the feature with id.
func (f *FeatureIndex) Get(id string) (Feature, bool, error) {
	idx, err := f.Load()
	if err != nil {
		return Feature{}, false, err
	}
	for _, feat := range idx.Features {
		if feat.ID == id {
			return feat, true, nil
		}
	}
	return Feature{}, false, nil
}

// HasName reports whether a feature with name is indexed.
func (f *FeatureIndex) HasName(name string) (bool, error) {
	idx, err := f.Load()
	if err != nil {
		return false, err
	}
	for _, feat := range idx.Features {
		if feat.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Update upserts the feature with id.
func (f *FeatureIndex) Update(id, name, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, err := f.Load()
	if err != nil {
		return err
	}
	for i := range idx.Features {
		if idx.Features[i].ID == id {
			idx.Features[i].Name = name
			idx.Features[i].Status = status
			return f.Save(idx)
		}
	}
	idx.Features = append(idx.Features, Feature{ID: id, Name: name, Status: status})
	return f.Save(idx)
}

// MarkNeedsFix labels the feature named name, adding a todo row if absent.
func (f *FeatureIndex) MarkNeedsFix(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx, err := f.Load()
	if err != nil {
		return err
	}
	for i := range idx.Features {
		if idx.Features[i].Name == name {
			idx.Features[i].Label = LabelNeedsFix
			return f.Save(idx)
		}
	}
	idx.Features = append(idx.Features, Feature{ID: name, Name: name, Status: "todo", Label: LabelNeedsFix})
	return f.Save(idx)
}

// MapFeature is one entry of project_map.json.
type MapFeature struct {
	Name      string   `json:"name"`
	Status    string   `json:"status,omitempty"`
	Files     []string `json:"files"`
	Assets    []string `json:"assets"`
	CreatedBy string   `json:"created_by,omitempty"`
	CreatedAt string   `json:"created_at,omitempty"`
	Tested    bool     `json:"tested"`
	DependsOn []string `json:"depends_on"`
	Deleted   bool     `json:"deleted"`
}

// Map is the contents of project_map.json.
type Map struct {
	SchemaVersion int                   `json:"schema_version"`
	Features      map[string]MapFeature `json:"features"`
}

// ProjectMap reads and writes project_map.json.
type ProjectMap struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewProjectMap returns a project map backed by path.
func NewProjectMap(path string) *ProjectMap {
	return &ProjectMap{path: path, now: func() time.Time { return time.Now().UTC() }}
}

// Path returns the project map location.
func (p *ProjectMap) Path() string {
	return p.path
}

// Load reads the map. A missing file yields an empty map.
func (p *ProjectMap) Load() (Map, error) {
	m := Map{SchemaVersion: SchemaVersion, Features: map[string]MapFeature{}}
	if err := readJSON(p.path, &m); err != nil {
		return m, err
	}
	if m.Features == nil {
		m.Features = map[string]MapFeature{}
	}
	return m, nil
}

// Save writes the map.
func (p *ProjectMap) Save(m Map) error {
	return writeJSON(p.path, m)
}

// Ensure creates an empty map file when none exists.
func (p *ProjectMap) Ensure() error {
	if _, err := os.Stat(p.path); err == nil {
		return nil
	}
	return p.Save(Map{SchemaVersion: SchemaVersion, Features: map[string]MapFeature{}})
}

// RecordFeature writes the entry for id. Status is done when tested, else failed.
func (p *ProjectMap) RecordFeature(id string, files []string, tested bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, err := p.Load()
	if err != nil {
		return err
	}
	status := "failed"
	if tested {
		status = "done"
	}
	if files == nil {
		files = []string{}
	}
	m.Features[id] = MapFeature{
		Name:      id,
		Status:    status,
		Files:     files,
		Assets:    []string{},
		CreatedBy: "CoderAgent",
		CreatedAt: p.now().Format(time.RFC3339),
		Tested:    tested,
		DependsOn: []string{},
	}
	return p.Save(m)
}

// Feature returns the entry for id.
func (p *ProjectMap) Feature(id string) (MapFeature, bool, error) {
	m, err := p.Load()
	if err != nil {
		return MapFeature{}, false, err
	}
	f, ok := m.Features[id]
	return f, ok, nil
}

// Names returns feature names of non-deleted entries, sorted.
func (p *ProjectMap) Names() ([]string, error) {
	m, err := p.Load()
	if err != nil {
		return nil, err
	}
	var names []string
	for id, f := range m.Features {
		if f.Deleted {
			continue
		}
		name := f.Name
		if name == "" {
			name = id
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
