// Package inbox watches a requests directory and turns dropped files into
// pipeline runs.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/logger"
)

// ProcessedDir receives handled request files.
const ProcessedDir = "processed"

// DefaultDebounce is how long a file must be quiet before it is read.
const DefaultDebounce = 500 * time.Millisecond

// ErrUnsupported is returned for files that are not requests.
var ErrUnsupported = errors.New("unsupported request file")

// Request is one dropped file. Batch is set for YAML files; Feature and Prompt otherwise.
type Request struct {
	Path    string
	Feature string
	Prompt  string
	Batch   []config.BatchFeature
}

// IsBatch reports whether the request came from a batch file.
func (r Request) IsBatch() bool {
	return r.Batch != nil
}

// Handler runs a request.
type Handler func(ctx context.Context, req Request) error

// Watcher hands new request files in Dir to Handle.
type Watcher struct {
	Dir      string
	Handle   Handler
	Debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time
}

// New returns a watcher over dir.
func New(dir string, handle Handler) *Watcher {
	return &Watcher{Dir: dir, Handle: handle, Debounce: DefaultDebounce}
}

// Parse reads a request file. *.txt and *.md are features named by their base
// name; *.yaml and *.yml are batches.
func Parse(path string) (Request, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return Request{}, err
		}
		return Request{
			Path:    path,
			Feature: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Prompt:  strings.TrimSpace(string(data)),
		}, nil
	case ".yaml", ".yml":
		batch, err := config.LoadBatch(path)
		if err != nil {
			return Request{}, err
		}
		if batch == nil {
			batch = []config.BatchFeature{}
		}
		return Request{Path: path, Batch: batch}, nil
	}
	return Request{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
}

// Scan handles every request already in Dir, in name order.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.process(ctx, filepath.Join(w.Dir, n))
	}
	return nil
}

// Run handles existing requests, then watches Dir until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Join(w.Dir, ProcessedDir), 0755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	logger.Info("watching inbox", "dir", w.Dir)

	if err := w.Scan(ctx); err != nil {
		return err
	}

	tick := w.Debounce / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.touch(ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", "error", err)
		case <-ticker.C:
			for _, path := range w.settled() {
				w.process(ctx, path)
			}
		}
	}
}

func (w *Watcher) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		w.pending = map[string]time.Time{}
	}
	w.pending[path] = time.Now()
}

// settled returns the pending paths quiet for the debounce window.
func (w *Watcher) settled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	var out []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.Debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

// process runs one file through Handle and moves it to processed/.
// Unsupported files and directories are left alone.
func (w *Watcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	req, err := Parse(path)
	if errors.Is(err, ErrUnsupported) {
		return
	}
	if err != nil {
		logger.Warn("invalid request", "path", path, "error", err)
	} else {
		fmt.Printf("📥 Request: %s\n", filepath.Base(path))
		if err := w.Handle(ctx, req); err != nil {
			logger.Error("request failed", "path", path, "error", err)
		}
	}

	dest, err := w.archive(path)
	if err != nil {
		logger.Warn("could not move request", "path", path, "error", err)
		return
	}
	logger.Debug("request archived", "path", dest)
}

// archive moves path into processed/, suffixing a timestamp on name clashes.
func (w *Watcher) archive(path string) (string, error) {
	dir := filepath.Join(w.Dir, ProcessedDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		dest = filepath.Join(dir, fmt.Sprintf("%s_%s%s", strings.TrimSuffix(name, ext), time.Now().UTC().Format("20060102T150405.000"), ext))
	}
	return dest, os.Rename(path, dest)
}
