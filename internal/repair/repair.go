// Package repair reads recent failures from the journal and the learning log
// and suggests how to get the pipeline green again.
package repair

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/store"
)

// ReportName is the file Suggest writes.
const ReportName = "repair_suggestion.md"

// Failure kinds.
const (
	KindRepeated = "repeated_error"
	KindUnstable = "unstable"
	KindError    = "error"
)

const (
	recentErrors = 3
	recentLearns = 3
)

var failurePattern = regexp.MustCompile(`(?i)error|failed`)

// Finding is one agent seen failing recently.
type Finding struct {
	Agent string
	Kind  string
}

// Suggestion is the analysis result.
type Suggestion struct {
	Findings    []Finding
	Reasons     []string
	Suggestions []string
	Report      string
}

// Agents returns the agents named in the findings.
func (s Suggestion) Agents() []string {
	out := make([]string, 0, len(s.Findings))
	for _, f := range s.Findings {
		out = append(out, f.Agent)
	}
	return out
}

// Repairer analyses failures.
type Repairer struct {
	Journal  *journal.Journal
	Learning *learning.Recorder

	// PipelineConfig is rewritten by AutoRepair.
	PipelineConfig string
}

// Analyze classifies the agents behind the last few failing journal lines.
func (r *Repairer) Analyze(ctx context.Context) (Suggestion, error) {
	lines, err := r.Journal.Grep(failurePattern)
	if err != nil {
		return Suggestion{}, fmt.Errorf("read journal: %w", err)
	}
	if len(lines) > recentErrors {
		lines = lines[len(lines)-recentErrors:]
	}

	var names []string
	for _, e := range journal.ParseLines(lines) {
		if !slices.Contains(names, e.Agent) {
			names = append(names, e.Agent)
		}
	}

	log := map[string][]store.Interaction{}
	if r.Learning != nil && len(names) > 0 {
		if log, err = r.Learning.Log(ctx); err != nil {
			return Suggestion{}, fmt.Errorf("load learning log: %w", err)
		}
	}

	var s Suggestion
	for _, name := range names {
		kind := Classify(log[name])
		s.Findings = append(s.Findings, Finding{Agent: name, Kind: kind})
		switch kind {
		case KindRepeated:
			s.Reasons = append(s.Reasons, fmt.Sprintf("- %s: %d errors in a row", name, recentLearns))
			s.Suggestions = append(s.Suggestions, fmt.Sprintf("- Rerun %s in isolation", name))
		case KindUnstable:
			s.Reasons = append(s.Reasons, fmt.Sprintf("- %s: unstable output", name))
		default:
			s.Reasons = append(s.Reasons, fmt.Sprintf("- %s: error", name))
		}
	}
	if len(names) > 0 {
		s.Suggestions = append(s.Suggestions, "- Skip "+agents.Refactor, "- Check TeamLead patch")
	}
	return s, nil
}

// Classify looks at the newest learning entries of one agent.
func Classify(entries []store.Interaction) string {
	if len(entries) > recentLearns {
		entries = entries[len(entries)-recentLearns:]
	}
	var ok, failed bool
	for _, e := range entries {
		switch e.Result {
		case store.ResultSuccess:
			ok = true
		case store.ResultError:
			failed = true
		}
	}
	switch {
	case len(entries) >= recentLearns && !ok:
		return KindRepeated
	case ok && failed:
		return KindUnstable
	default:
		return KindError
	}
}

// Suggest analyses, writes repair_suggestion.md into outDir and journals it.
func (r *Repairer) Suggest(ctx context.Context, feature, outDir string) (Suggestion, error) {
	s, err := r.Analyze(ctx)
	if err != nil {
		return s, err
	}
	if feature == "" {
		feature = "unknown"
	}

	reasons := s.Reasons
	if len(reasons) == 0 {
		reasons = []string{"- no data"}
	}
	actions := s.Suggestions
	if len(actions) == 0 {
		actions = []string{"- no actions"}
	}

	var b strings.Builder
	b.WriteString("# 🛠 Repair Suggestions\n\n## Reasons:\n")
	b.WriteString(strings.Join(reasons, "\n"))
	b.WriteString("\n\n## Suggested:\n")
	b.WriteString(strings.Join(actions, "\n"))
	b.WriteString("\n")

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return s, err
	}
	s.Report = filepath.Join(outDir, ReportName)
	if err := os.WriteFile(s.Report, []byte(b.String()), 0644); err != nil {
		return s, fmt.Errorf("write repair suggestion: %w", err)
	}
	r.Journal.Log("CIRepair", "suggestions for "+feature)
	return s, nil
}

// AutoRepair drops the failing agents from the pipeline config agents list.
// An empty list stands for the default order. It returns the agents left.
func (r *Repairer) AutoRepair(s Suggestion) ([]string, error) {
	cfg, err := config.LoadPipeline(r.PipelineConfig)
	if err != nil {
		return nil, err
	}
	current := cfg.Agents
	if len(current) == 0 {
		current = agents.DefaultOrder
	}

	drop := s.Agents()
	kept := make([]string, 0, len(current))
	for _, a := range current {
		if !slices.Contains(drop, a) {
			kept = append(kept, a)
		}
	}
	if err := config.SetAgents(r.PipelineConfig, kept); err != nil {
		return nil, fmt.Errorf("rewrite pipeline config: %w", err)
	}
	r.Journal.Log("CIRepair", "auto repair removed "+strings.Join(drop, ", "))
	return kept, nil
}
