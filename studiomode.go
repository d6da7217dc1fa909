// Package studiomode provides a public API for running the studio pipeline as a library.
// This is a wrapper around the internal packages to provide a stable public API.
package studiomode

import (
	"context"
	"time"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/pipeline"
	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/task"
)

// Options override the configuration read from the environment and .studio.yaml.
type Options struct {
	ProjectPath string // Engine project root
	EngineCLI   string // Engine executable
	LLMURL      string // Ollama server root
}

// Studio runs feature requests through the agent pipeline.
type Studio struct {
	runner *pipeline.Runner
}

// Result is the outcome of one feature run.
type Result struct {
	Feature  string        // Feature name
	Passed   bool          // Whether the run passed
	Summary  string        // Summary path relative to the reports dir
	Duration time.Duration // Wall time of the run
}

// Task is a feature request.
type Task interface {
	GetID() string
	GetTitle() string
	GetDescription() string
	GetFeatureName() string
}

// Open loads the configuration, applies opts and wires the pipeline. Close releases it.
func Open(ctx context.Context, opts Options) (*Studio, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.ProjectPath != "" {
		cfg.ProjectPath = opts.ProjectPath
	}
	if opts.EngineCLI != "" {
		cfg.EngineCLI = opts.EngineCLI
	}
	if opts.LLMURL != "" {
		cfg.LLM.BaseURL = opts.LLMURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Studio{runner: r}, nil
}

// Close releases the workspace store.
func (s *Studio) Close() error {
	return s.runner.Close()
}

// Run backs up the project, runs t and restores the backup when the run fails.
func (s *Studio) Run(ctx context.Context, t Task, optimize bool) (*Result, error) {
	res, err := s.runner.Run(ctx, t.GetFeatureName(), t.GetDescription(), optimize)
	out := &Result{
		Feature:  res.Name,
		Passed:   err == nil,
		Summary:  res.Summary,
		Duration: time.Duration(res.Time * float64(time.Second)),
	}
	return out, err
}

// RunBatch runs every feature of a batch YAML file and returns the multi-feature summary path.
func (s *Studio) RunBatch(ctx context.Context, path string, optimize bool) (string, []Result, error) {
	batch, err := config.LoadBatch(path)
	if err != nil {
		return "", nil, err
	}
	summary, results, err := s.runner.RunBatch(ctx, batch, optimize)
	out := make([]Result, 0, len(results))
	for _, r := range results {
		out = append(out, Result{
			Feature:  r.Name,
			Passed:   r.Status == report.FeatureSuccess,
			Summary:  r.Summary,
			Duration: time.Duration(r.Time * float64(time.Second)),
		})
	}
	return summary, out, err
}

// NewPromptTask creates a task from an inline prompt. Empty title and feature are derived from it.
func NewPromptTask(prompt, title, feature string) (Task, error) {
	return task.CreateFromPrompt(prompt, title, feature)
}

// NewFileTask creates a task from a request file.
func NewFileTask(path, title, feature string) (Task, error) {
	return task.CreateFromFile(path, title, feature)
}
