package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceEntry is one agent invocation.
type TraceEntry struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Action    string    `json:"action"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Hash      string    `json:"hash,omitempty"`
	Input     string    `json:"input,omitempty"`
	Output    string    `json:"output,omitempty"`
}

// Duration is the wall time of the invocation.
func (e TraceEntry) Duration() time.Duration {
	if e.EndTime.Before(e.StartTime) {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// Tracer appends trace entries as JSON lines.
type Tracer struct {
	path string
	mu   sync.Mutex
}

// NewTracer returns a tracer writing to path.
func NewTracer(path string) *Tracer {
	return &Tracer{path: path}
}

// Record appends entry, assigning an ID when empty.
func (t *Tracer) Record(entry TraceEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// Load groups entries by agent in file order. Malformed lines are skipped.
func (t *Tracer) Load() (map[string][]TraceEntry, error) {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]TraceEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string][]TraceEntry)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e TraceEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil || e.Agent == "" {
			continue
		}
		out[e.Agent] = append(out[e.Agent], e)
	}
	return out, scanner.Err()
}
