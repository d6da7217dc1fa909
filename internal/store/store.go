// Package store defines the persisted learning log and run history.
package store

import (
	"context"
	"time"
)

// Interaction results recorded in the learning log.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Interaction is one agent call recorded for learning.
type Interaction struct {
	ID        string
	RunID     string
	Agent     string
	Hash      string
	Input     string
	Output    string
	Result    string
	CreatedAt time.Time
}

// Run is one feature execution.
type Run struct {
	ID        string
	Feature   string
	Status    string
	StartedAt time.Time
	EndedAt   *time.Time
	Summary   string
}

// LearningLog is the interaction storage used by the learning recorder.
type LearningLog interface {
	RecordInteraction(ctx context.Context, in Interaction) error
	Interactions(ctx context.Context, agent string) ([]Interaction, error)
	InteractionsByAgent(ctx context.Context) (map[string][]Interaction, error)
}

// RunHistory is the run storage used by the pipeline.
type RunHistory interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id, status, summary string) error
	Runs(ctx context.Context, limit int) ([]Run, error)
}
