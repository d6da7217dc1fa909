// Package agents implements the pipeline stages: design, planning, architecture,
// scene construction, code generation, testing, inspection, review, build and refactor.
package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/logger"
)

// Stage names.
const (
	GameDesigner     = "GameDesignerAgent"
	ProjectManager   = "ProjectManagerAgent"
	Architect        = "ArchitectAgent"
	SceneBuilder     = "SceneBuilderAgent"
	Coder            = "CoderAgent"
	Tester           = "TesterAgent"
	FeatureInspector = "FeatureInspectorAgent"
	LoreValidator    = "LoreValidatorAgent"
	Review           = "ReviewAgent"
	Build            = "BuildAgent"
	Refactor         = "RefactorAgent"
	TeamLead         = "TeamLeadAgent"
)

// DefaultOrder is the full stage sequence used when nothing narrows it.
var DefaultOrder = []string{
	GameDesigner,
	ProjectManager,
	Architect,
	SceneBuilder,
	Coder,
	Tester,
	FeatureInspector,
	Review,
	Build,
	Refactor,
}

// Input is the loosely typed payload handed to an agent.
type Input map[string]any

// Output is what an agent hands to the next stage.
type Output map[string]any

// Agent is one pipeline stage.
type Agent interface {
	Name() string
	Run(ctx context.Context, in Input) (Output, error)
}

// String returns in[key] when it is a non-empty string.
func (in Input) String(key string) string {
	s, _ := in[key].(string)
	return s
}

// Strings returns in[key] as a string slice, accepting []string or []any.
func (in Input) Strings(key string) []string {
	switch v := in[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// Bool returns in[key] when it is a bool.
func (in Input) Bool(key string) bool {
	b, _ := in[key].(bool)
	return b
}

// Merge returns a copy of in with out layered on top.
func (in Input) Merge(out Output) Input {
	merged := make(Input, len(in)+len(out))
	for k, v := range in {
		merged[k] = v
	}
	for k, v := range out {
		merged[k] = v
	}
	return merged
}

type traced struct {
	Agent
	tracer *journal.Tracer
	now    func() time.Time
}

// Traced wraps a so every run is appended to the trace log with its timing,
// status and input hash. A nil tracer returns a unchanged.
func Traced(a Agent, tracer *journal.Tracer) Agent {
	if tracer == nil {
		return a
	}
	return &traced{Agent: a, tracer: tracer, now: time.Now}
}

func (t *traced) Run(ctx context.Context, in Input) (Output, error) {
	start := t.now()
	out, err := t.Agent.Run(ctx, in)

	input := learning.Normalize(map[string]any(in))
	entry := journal.TraceEntry{
		Agent:     t.Name(),
		Action:    "run",
		StartTime: start.UTC(),
		EndTime:   t.now().UTC(),
		Status:    "success",
		Hash:      learning.Hash(input),
		Input:     input,
		Output:    learning.Normalize(map[string]any(out)),
	}
	if err != nil {
		entry.Status = "error"
		entry.Output = err.Error()
	}
	if terr := t.tracer.Record(entry); terr != nil {
		logger.Warn("trace write failed", "agent", t.Name(), "error", terr)
	}
	return out, err
}

// Func adapts a function to Agent.
type Func struct {
	AgentName string
	Fn        func(ctx context.Context, in Input) (Output, error)
}

// Name implements Agent.
func (f Func) Name() string { return f.AgentName }

// Run implements Agent.
func (f Func) Run(ctx context.Context, in Input) (Output, error) { return f.Fn(ctx, in) }

func note(j *journal.Journal, agent, action string) {
	if j != nil {
		j.Log(agent, action)
	}
}

func capText(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
