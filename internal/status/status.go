// Package status tracks per-feature pipeline state in pipeline_status.json.
// There is a single writer; every mutation rewrites the whole document.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"
)

// State is a feature's pipeline state.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
)

// Stage outcomes.
const (
	StageRunning = "running"
	StageSuccess = "success"
	StageFailed  = "failed"
)

// ErrUnknownFeature is returned for features that were never queued.
var ErrUnknownFeature = errors.New("unknown feature")

// StageRecord records one agent stage of a feature run.
type StageRecord struct {
	Agent     string    `json:"agent"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FeatureStatus is the tracked state of one feature.
type FeatureStatus struct {
	Status       State             `json:"status"`
	Started      *time.Time        `json:"started,omitempty"`
	Ended        *time.Time        `json:"ended,omitempty"`
	Duration     float64           `json:"duration,omitempty"`
	SummaryPath  string            `json:"summary_path,omitempty"`
	AgentResults map[string]string `json:"agent_results,omitempty"`
	IsMulti      bool              `json:"is_multi"`
	Stages       []StageRecord     `json:"stages,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Document is the on-disk status file.
type Document struct {
	Features map[string]*FeatureStatus `json:"features"`
	Multi    bool                      `json:"multi"`
	RunID    string                    `json:"run_id,omitempty"`
}

// Tracker owns pipeline_status.json.
type Tracker struct {
	path string
	doc  Document
	mu   sync.Mutex
	now  func() time.Time
}

// NewTracker loads path, treating a missing or corrupt file as empty.
func NewTracker(path string) *Tracker {
	t := &Tracker{path: path, now: func() time.Time { return time.Now().UTC() }}
	t.doc = read(path)
	return t
}

// Load reads the status document without a tracker.
func Load(path string) Document {
	return read(path)
}

func read(path string) Document {
	doc := Document{Features: map[string]*FeatureStatus{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{Features: map[string]*FeatureStatus{}}
	}
	if doc.Features == nil {
		doc.Features = map[string]*FeatureStatus{}
	}
	return doc
}

// Path returns the status file location.
func (t *Tracker) Path() string {
	return t.path
}

// Init resets the document with every feature queued.
func (t *Tracker) Init(runID string, names []string, multi bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.doc = Document{Features: map[string]*FeatureStatus{}, Multi: multi, RunID: runID}
	for _, n := range names {
		t.doc.Features[n] = &FeatureStatus{Status: StateQueued, IsMulti: multi}
	}
	return t.save()
}

// Start moves a feature to running. Unknown features are queued first.
func (t *Tracker) Start(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, ok := t.doc.Features[name]
	if !ok {
		fs = &FeatureStatus{Status: StateQueued, IsMulti: t.doc.Multi}
		t.doc.Features[name] = fs
	}
	if err := transition(fs.Status, StateRunning); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	now := t.now()
	fs.Status = StateRunning
	fs.Started = &now
	fs.Ended = nil
	fs.Duration = 0
	fs.Error = ""
	fs.Stages = nil
	return t.save()
}

// BeginStage records the start of an agent stage.
func (t *Tracker) BeginStage(name, agent string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, err := t.running(name)
	if err != nil {
		return err
	}
	fs.Stages = append(fs.Stages, StageRecord{Agent: agent, Status: StageRunning, StartedAt: t.now()})
	return t.save()
}

// CompleteStage marks the open stage for agent as successful.
func (t *Tracker) CompleteStage(name, agent, result string) error {
	return t.endStage(name, agent, StageSuccess, result, "")
}

// FailStage marks the open stage for agent as failed.
func (t *Tracker) FailStage(name, agent string, stageErr error) error {
	msg := ""
	if stageErr != nil {
		msg = stageErr.Error()
	}
	return t.endStage(name, agent, StageFailed, "", msg)
}

func (t *Tracker) endStage(name, agent, outcome, result, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, err := t.running(name)
	if err != nil {
		return err
	}

	now := t.now()
	for i := len(fs.Stages) - 1; i >= 0; i-- {
		s := &fs.Stages[i]
		if s.Agent == agent && s.Status == StageRunning {
			s.Status = outcome
			s.EndedAt = now
			s.Duration = now.Sub(s.StartedAt).Seconds()
			s.Result = result
			s.Error = errMsg
			return t.save()
		}
	}
	return fmt.Errorf("%s: no open stage for %s", name, agent)
}

// Finish moves a running feature to passed or failed.
func (t *Tracker) Finish(name string, passed bool, summaryPath string, results map[string]string) error {
	return t.finish(name, passed, summaryPath, results, "")
}

// Fail moves a running feature to failed with an error message.
func (t *Tracker) Fail(name string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return t.finish(name, false, "", nil, msg)
}

func (t *Tracker) finish(name string, passed bool, summaryPath string, results map[string]string, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, ok := t.doc.Features[name]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUnknownFeature)
	}

	next := StateFailed
	if passed {
		next = StatePassed
	}
	if err := transition(fs.Status, next); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	now := t.now()
	fs.Status = next
	fs.Ended = &now
	if fs.Started != nil {
		fs.Duration = now.Sub(*fs.Started).Seconds()
	}
	if summaryPath != "" {
		fs.SummaryPath = summaryPath
	}
	if results != nil {
		fs.AgentResults = maps.Clone(results)
	}
	fs.Error = errMsg
	return t.save()
}

// Get returns a copy of a feature's status.
func (t *Tracker) Get(name string) (FeatureStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fs, ok := t.doc.Features[name]
	if !ok {
		return FeatureStatus{}, false
	}
	return fs.clone(), true
}

// Document returns a snapshot of the whole document.
func (t *Tracker) Document() Document {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Document{Features: make(map[string]*FeatureStatus, len(t.doc.Features)), Multi: t.doc.Multi, RunID: t.doc.RunID}
	for k, v := range t.doc.Features {
		cp := v.clone()
		out.Features[k] = &cp
	}
	return out
}

// Features returns tracked feature names, sorted.
func (t *Tracker) Features() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Names()
}

// Summary counts features per state.
func (t *Tracker) Summary() map[State]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc.Summary()
}

// Names returns the document's feature names, sorted.
func (d Document) Names() []string {
	names := make([]string, 0, len(d.Features))
	for n := range d.Features {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summary counts features per state.
func (d Document) Summary() map[State]int {
	counts := map[State]int{}
	for _, fs := range d.Features {
		counts[fs.Status]++
	}
	return counts
}

func (t *Tracker) running(name string) (*FeatureStatus, error) {
	fs, ok := t.doc.Features[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownFeature)
	}
	if fs.Status != StateRunning {
		return nil, fmt.Errorf("%s: feature is %s, not running", name, fs.Status)
	}
	return fs, nil
}

// transition enforces queued→running→passed|failed; finished features may re-run.
func transition(from, to State) error {
	switch {
	case to == StateRunning && (from == StateQueued || from == StatePassed || from == StateFailed):
		return nil
	case from == StateRunning && (to == StatePassed || to == StateFailed):
		return nil
	}
	return fmt.Errorf("invalid transition %s -> %s", from, to)
}

func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

// clone copies fs so callers never share its slices, maps or times with the tracker.
func (fs *FeatureStatus) clone() FeatureStatus {
	cp := *fs
	cp.AgentResults = maps.Clone(fs.AgentResults)
	cp.Stages = slices.Clone(fs.Stages)
	if fs.Started != nil {
		t := *fs.Started
		cp.Started = &t
	}
	if fs.Ended != nil {
		t := *fs.Ended
		cp.Ended = &t
	}
	return cp
}
