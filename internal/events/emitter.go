// Package events emits newline-delimited JSON events describing pipeline progress.
// Events are off until SetOutput is called; `studio run --events` points them at stdout.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// Event represents a structured event emitted during a pipeline run.
type Event struct {
	Type    string         `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	Feature string         `json:"feature,omitempty"`
	Agent   string         `json:"agent,omitempty"`
	Status  string         `json:"status,omitempty"`
	Message string         `json:"message,omitempty"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data,omitempty"`
}

var (
	mu  sync.Mutex
	out io.Writer
)

// SetOutput directs events to w. A nil writer disables emission.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Emit writes one JSON event line.
func Emit(event Event) {
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintln(out, string(line))
}

// FeatureQueued emits when a feature enters the status tracker.
func FeatureQueued(runID, feature string) {
	Emit(Event{Type: "feature_queued", RunID: runID, Feature: feature, Status: "queued"})
}

// FeatureUpdated emits when a feature changes state.
func FeatureUpdated(runID, feature, status string) {
	Emit(Event{Type: "feature_updated", RunID: runID, Feature: feature, Status: status})
}

// StageStarted emits when an agent stage begins.
func StageStarted(runID, feature, agent string) {
	Emit(Event{Type: "stage_started", RunID: runID, Feature: feature, Agent: agent})
}

// StageCompleted emits when an agent stage ends, with optional output metadata.
func StageCompleted(runID, feature, agent, status string, data map[string]any) {
	Emit(Event{Type: "stage_completed", RunID: runID, Feature: feature, Agent: agent, Status: status, Data: data})
}

// Progress emits a general progress message.
func Progress(message string) {
	Emit(Event{Type: "progress", Message: message})
}
