package agents

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/engine"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/lint"
	"github.com/philjestin/studiomode/internal/llm"
	"github.com/philjestin/studiomode/internal/memory"
	"github.com/philjestin/studiomode/internal/testrunner"
)

// Registry maps stage names to agents.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry returns a registry holding agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: map[string]Agent{}}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name()] = a
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names lists registered agents, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the agents for names in order.
func (r *Registry) Resolve(names []string) ([]Agent, error) {
	out := make([]Agent, 0, len(names))
	for _, n := range names {
		a, ok := r.agents[n]
		if !ok {
			return nil, fmt.Errorf("unknown agent %q", n)
		}
		out = append(out, a)
	}
	return out, nil
}

// Deps are the services shared by the standard agents.
type Deps struct {
	Config     *config.Config
	LLM        *llm.Client
	Journal    *journal.Journal
	Tracer     *journal.Tracer
	Memory     *memory.Store
	Learning   *learning.Recorder
	Index      *index.FeatureIndex
	ProjectMap *index.ProjectMap
	Linter     *lint.Linter
	Tests      *testrunner.Runner
	Builder    *engine.Builder
}

// Default builds every standard agent, each wrapped for tracing.
func Default(d Deps) *Registry {
	cfg := d.Config

	linter := d.Linter
	if linter == nil {
		linter = lint.New()
	}
	tests := d.Tests
	if tests == nil {
		tests = testrunner.New(cfg.EngineCLI, cfg.ProjectPath)
	}
	builder := d.Builder
	if builder == nil {
		builder = engine.NewBuilder(cfg.EngineCLI, cfg.ProjectPath, cfg.WorkDir)
	}

	var gen llm.Generator
	var chat llm.Chatter
	if d.LLM != nil {
		gen = d.LLM.ForAgent(GameDesigner)
		chat = d.LLM.ForAgent(Coder)
	}

	all := []Agent{
		&GameDesignerAgent{LLM: gen},
		&ProjectManagerAgent{},
		&ArchitectAgent{Memory: d.Memory},
		&SceneBuilderAgent{Root: cfg.ProjectPath, Memory: d.Memory},
		&CoderAgent{
			Chat:        chat,
			ScriptsRoot: cfg.ScriptsRoot(),
			ProjectRoot: cfg.ProjectPath,
			Learning:    d.Learning,
			Journal:     d.Journal,
			Delay:       time.Second,
		},
		&TesterAgent{Runner: tests},
		&FeatureInspectorAgent{
			ProjectMap: d.ProjectMap,
			Index:      d.Index,
			Catalog:    cfg.Paths.AssetCatalog,
			OutDir:     cfg.ReportsDir,
			Journal:    d.Journal,
		},
		&LoreValidatorAgent{
			LoreDir:  cfg.Paths.Lore,
			Lorebook: cfg.Paths.Lorebook,
			OutDir:   cfg.ReportsDir,
			Journal:  d.Journal,
		},
		&ReviewAgent{Linter: linter, Project: cfg.ProjectPath, Dir: cfg.WorkDir, Journal: d.Journal},
		&BuildAgent{Builder: builder, Target: cfg.BuildTarget, Journal: d.Journal},
		&RefactorAgent{Linter: linter, Project: cfg.ProjectPath},
		NewTeamLead(cfg.Paths.TeamLeadJournal, cfg.Paths.Metrics, d.ProjectMap),
	}

	r := NewRegistry()
	for _, a := range all {
		r.Register(Traced(a, d.Tracer))
	}
	return r
}

// StageName strips the Agent suffix: CoderAgent becomes Coder.
func StageName(agent string) string {
	return strings.TrimSuffix(agent, "Agent")
}
