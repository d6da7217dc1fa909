package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/philjestin/studiomode/internal/index"
)

// LeadEntry is one message in journal.json.
type LeadEntry struct {
	Time string `json:"time"`
	Msg  string `json:"msg"`
}

// TeamLeadAgent keeps the team-lead journal, the metrics log and the project map.
type TeamLeadAgent struct {
	// JournalPath is journal.json.
	JournalPath string

	// MetricsPath is metrics.json.
	MetricsPath string

	ProjectMap *index.ProjectMap

	mu  sync.Mutex
	now func() time.Time
}

// NewTeamLead returns a team lead writing the given files.
func NewTeamLead(journalPath, metricsPath string, pm *index.ProjectMap) *TeamLeadAgent {
	return &TeamLeadAgent{
		JournalPath: journalPath,
		MetricsPath: metricsPath,
		ProjectMap:  pm,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Name implements Agent.
func (a *TeamLeadAgent) Name() string { return TeamLead }

// Run merges {feature} with the metrics found under metrics, or the remaining input.
func (a *TeamLeadAgent) Run(_ context.Context, in Input) (Output, error) {
	feature := in.String("feature")
	if feature == "" {
		return nil, ErrNoFeature
	}
	metrics, ok := in["metrics"].(map[string]any)
	if !ok {
		metrics = map[string]any{}
		for k, v := range in {
			if k != "feature" {
				metrics[k] = v
			}
		}
	}
	if err := a.MergeFeature(feature, metrics); err != nil {
		return nil, err
	}
	return Output{"feature": feature, "merged": true}, nil
}

// Log prints msg and appends it to journal.json.
func (a *TeamLeadAgent) Log(msg string) error {
	fmt.Printf("[TeamLead] %s\n", msg)

	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []LeadEntry
	if err := readList(a.JournalPath, &entries); err != nil {
		return err
	}
	entries = append(entries, LeadEntry{Time: a.timestamp(), Msg: msg})
	return writeList(a.JournalPath, entries)
}

// Messages returns journal.json in order.
func (a *TeamLeadAgent) Messages() ([]LeadEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []LeadEntry
	if err := readList(a.JournalPath, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []LeadEntry{}
	}
	return entries, nil
}

// UpdateProjectMap records a feature as done when tested, failed otherwise.
func (a *TeamLeadAgent) UpdateProjectMap(id string, files []string, tested bool) error {
	return a.ProjectMap.RecordFeature(id, files, tested)
}

// RecordMetrics appends a timestamped entry to metrics.json.
func (a *TeamLeadAgent) RecordMetrics(metrics map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []map[string]any
	if err := readList(a.MetricsPath, &entries); err != nil {
		return err
	}
	entry := map[string]any{"time": a.timestamp()}
	for k, v := range metrics {
		entry[k] = v
	}
	entries = append(entries, entry)
	return writeList(a.MetricsPath, entries)
}

// MergeFeature logs the merge, updates the project map and records the metrics.
// The feature counts as tested when tests_passed is above zero.
func (a *TeamLeadAgent) MergeFeature(feature string, metrics map[string]any) error {
	if err := a.Log("Merging feature " + feature); err != nil {
		return err
	}

	var files []string
	if f, ok := metrics["files"]; ok {
		files = Input{"files": f}.Strings("files")
	}
	if err := a.UpdateProjectMap(feature, files, number(metrics["tests_passed"]) > 0); err != nil {
		return err
	}

	entry := map[string]any{"feature": feature}
	for k, v := range metrics {
		entry[k] = v
	}
	return a.RecordMetrics(entry)
}

func (a *TeamLeadAgent) timestamp() string {
	now := a.now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return now().Format(time.RFC3339Nano)
}

func number(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

func readList(path string, v any) error {
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

func writeList(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
