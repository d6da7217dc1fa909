// Package backup snapshots a directory tree per feature and restores it on failure.
//
// Snapshots live under <root>/<feature>/<version>, where version is a UTC
// timestamp. Copies are verbatim: no diffing, deduplication or checksums.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// VersionLayout formats snapshot directory names. It sorts lexically by time.
const VersionLayout = "20060102T150405.000000000"

// ErrNotFound is returned when a feature has no snapshot.
var ErrNotFound = errors.New("backup not found")

// DefaultExcludes are base-name patterns never copied or cleared.
var DefaultExcludes = []string{".backup", ".git", "venv", "external", "__pycache__", "*.pyc", "*.pyo", "*.pyd"}

// Snapshot describes one saved version.
type Snapshot struct {
	Feature string
	Version string
	Path    string
	Created time.Time
}

// Manager saves and restores feature snapshots.
type Manager struct {
	// Root is the backup directory.
	Root string
	// Excludes are glob patterns matched against base names.
	Excludes []string
	// Keep is the number of versions retained per feature; 0 keeps all.
	Keep int

	now func() time.Time
}

// NewManager returns a manager with default excludes.
func NewManager(root string, keep int) *Manager {
	if root == "" {
		root = "_backups"
	}
	return &Manager{
		Root:     root,
		Excludes: append([]string(nil), DefaultExcludes...),
		Keep:     keep,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Save copies source into a new version for feature and prunes old versions.
func (m *Manager) Save(feature, source string) (Snapshot, error) {
	if err := validName(feature); err != nil {
		return Snapshot{}, err
	}
	if _, err := os.Lstat(source); err != nil {
		return Snapshot{}, fmt.Errorf("backup source: %w", err)
	}

	created := m.now()
	version := created.Format(VersionLayout)
	dest := filepath.Join(m.Root, feature, version)
	if _, err := os.Stat(dest); err == nil {
		return Snapshot{}, fmt.Errorf("snapshot %s/%s already exists", feature, version)
	}

	if err := m.copyTree(source, dest); err != nil {
		os.RemoveAll(dest)
		return Snapshot{}, fmt.Errorf("backup %s: %w", feature, err)
	}

	if m.Keep > 0 {
		if _, err := m.Prune(feature, m.Keep); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{Feature: feature, Version: version, Path: dest, Created: created}, nil
}

// Restore replaces target with the latest snapshot of feature.
func (m *Manager) Restore(feature, target string) (Snapshot, error) {
	versions, err := m.List(feature)
	if err != nil {
		return Snapshot{}, err
	}
	if len(versions) == 0 {
		return Snapshot{}, fmt.Errorf("%s: %w", feature, ErrNotFound)
	}
	return m.RestoreVersion(feature, versions[0].Version, target)
}

// RestoreVersion replaces target with a specific snapshot.
func (m *Manager) RestoreVersion(feature, version, target string) (Snapshot, error) {
	if err := validName(feature); err != nil {
		return Snapshot{}, err
	}
	src := filepath.Join(m.Root, feature, version)
	info, err := os.Stat(src)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, fmt.Errorf("%s@%s: %w", feature, version, ErrNotFound)
	}
	if err != nil {
		return Snapshot{}, err
	}

	if err := m.clear(target); err != nil {
		return Snapshot{}, fmt.Errorf("clear %s: %w", target, err)
	}
	if err := m.copyTree(src, target); err != nil {
		return Snapshot{}, fmt.Errorf("restore %s: %w", feature, err)
	}

	snap := Snapshot{Feature: feature, Version: version, Path: src, Created: info.ModTime()}
	if t, err := time.Parse(VersionLayout, version); err == nil {
		snap.Created = t
	}
	return snap, nil
}

// List returns the feature's snapshots, newest first.
func (m *Manager) List(feature string) ([]Snapshot, error) {
	if err := validName(feature); err != nil {
		return nil, err
	}
	dir := filepath.Join(m.Root, feature)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Snapshot
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		t, err := time.Parse(VersionLayout, e.Name())
		if err != nil {
			continue
		}
		out = append(out, Snapshot{Feature: feature, Version: e.Name(), Path: filepath.Join(dir, e.Name()), Created: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// Features lists features that have at least one snapshot.
func (m *Manager) Features() ([]string, error) {
	entries, err := os.ReadDir(m.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if versions, _ := m.List(e.Name()); len(versions) > 0 {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Prune removes all but the newest keep versions and returns the removed ones.
func (m *Manager) Prune(feature string, keep int) ([]Snapshot, error) {
	if keep < 1 {
		return nil, fmt.Errorf("keep must be at least 1, got %d", keep)
	}
	versions, err := m.List(feature)
	if err != nil {
		return nil, err
	}
	if len(versions) <= keep {
		return nil, nil
	}

	removed := versions[keep:]
	for _, s := range removed {
		if err := os.RemoveAll(s.Path); err != nil {
			return nil, fmt.Errorf("prune %s: %w", s.Version, err)
		}
	}
	return removed, nil
}

// excluded reports whether a path is skipped during copy and clear.
func (m *Manager) excluded(path string) bool {
	if m.isRoot(path) {
		return true
	}
	base := filepath.Base(path)
	for _, pattern := range m.Excludes {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (m *Manager) isRoot(path string) bool {
	a, err1 := filepath.Abs(path)
	b, err2 := filepath.Abs(m.Root)
	return err1 == nil && err2 == nil && a == b
}

// holdsRoot reports whether the backup root lies somewhere below path.
func (m *Manager) holdsRoot(path string) bool {
	a, err1 := filepath.Abs(path)
	b, err2 := filepath.Abs(m.Root)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(a, b)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// clear empties target, keeping excluded entries and the backup root.
func (m *Manager) clear(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.Remove(target)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(target, e.Name())
		if m.excluded(p) {
			continue
		}
		if e.IsDir() && m.holdsRoot(p) {
			if err := m.clear(p); err != nil {
				return err
			}
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return copySymlink(src, dst)
	case !info.IsDir():
		return copyFile(src, dst, info.Mode())
	}

	if err := os.MkdirAll(dst, info.Mode().Perm()|0700); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		if m.excluded(s) {
			continue
		}
		if err := m.copyTree(s, filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return os.Chmod(dst, info.Mode().Perm())
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, mode.Perm())
}

func copySymlink(src, dst string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	os.Remove(dst)
	return os.Symlink(link, dst)
}

func validName(feature string) error {
	if feature == "" || feature == "." || feature == ".." || filepath.Base(feature) != feature {
		return fmt.Errorf("invalid feature name %q", feature)
	}
	return nil
}
