// Package planner decides which agents run for a feature request and in what order.
// The baseline order comes from declared stage dependencies; prompt rules then trim it.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gammazero/toposort"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/memory"
)

// SimilarityThreshold is the ratio above which a prompt counts as an already known feature.
const SimilarityThreshold = 0.75

// Dependency says Stage runs after After.
type Dependency struct {
	Stage string
	After string
}

// DefaultDependencies is the standard stage graph.
var DefaultDependencies = []Dependency{
	{agents.ProjectManager, agents.GameDesigner},
	{agents.Architect, agents.ProjectManager},
	{agents.SceneBuilder, agents.Architect},
	{agents.Coder, agents.Architect},
	{agents.Tester, agents.Coder},
	{agents.FeatureInspector, agents.Tester},
	{agents.Review, agents.Tester},
	{agents.Build, agents.Review},
	{agents.Refactor, agents.Build},
}

// Order sorts the stages of deps topologically. Stages at the same depth keep
// their position in preferred; unlisted stages go last by name.
func Order(deps []Dependency, preferred []string) ([]string, error) {
	edges := make([]toposort.Edge, 0, len(deps))
	parents := map[string][]string{}
	for _, d := range deps {
		edges = append(edges, toposort.Edge{d.After, d.Stage})
		parents[d.Stage] = append(parents[d.Stage], d.After)
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("cycle in stage dependencies: %w", err)
	}

	depth := map[string]int{}
	names := make([]string, 0, len(sorted))
	for _, node := range sorted {
		name := node.(string)
		for _, p := range parents[name] {
			if depth[p]+1 > depth[name] {
				depth[name] = depth[p] + 1
			}
		}
		names = append(names, name)
	}

	rank := map[string]int{}
	for i, n := range preferred {
		rank[n] = i
	}
	pos := func(n string) int {
		if r, ok := rank[n]; ok {
			return r
		}
		return len(preferred)
	}
	sort.SliceStable(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if depth[a] != depth[b] {
			return depth[a] < depth[b]
		}
		if pos(a) != pos(b) {
			return pos(a) < pos(b)
		}
		return a < b
	})
	return names, nil
}

// Planner picks the agents for a prompt.
type Planner struct {
	baseline   []string
	memory     *memory.Store
	projectMap *index.ProjectMap
}

// New builds a planner from the default stage graph. mem and pm may be nil.
func New(mem *memory.Store, pm *index.ProjectMap) (*Planner, error) {
	return NewWithDependencies(DefaultDependencies, mem, pm)
}

// NewWithDependencies builds a planner from a custom stage graph.
func NewWithDependencies(deps []Dependency, mem *memory.Store, pm *index.ProjectMap) (*Planner, error) {
	baseline, err := Order(deps, agents.DefaultOrder)
	if err != nil {
		return nil, err
	}
	return &Planner{baseline: baseline, memory: mem, projectMap: pm}, nil
}

// Baseline returns the full stage order.
func (p *Planner) Baseline() []string {
	return append([]string{}, p.baseline...)
}

// KnownFeatures collects feature names from shared memory and the project map.
func (p *Planner) KnownFeatures() []string {
	var known []string
	if p.memory != nil {
		known = append(known, p.memory.Features()...)
	}
	if p.projectMap != nil {
		if names, err := p.projectMap.Names(); err == nil {
			known = append(known, names...)
		}
	}
	return known
}

// Plan returns the agents for prompt. An empty prompt gets the baseline.
func (p *Planner) Plan(prompt string) []string {
	plan := p.Baseline()
	if strings.TrimSpace(prompt) == "" {
		return plan
	}

	if Similar(prompt, p.KnownFeatures()) {
		plan = without(plan, agents.GameDesigner, agents.ProjectManager)
	}
	return ApplyRules(plan, prompt)
}

// Similar reports whether prompt matches any known feature, ignoring case.
func Similar(prompt string, known []string) bool {
	low := strings.ToLower(prompt)
	for _, k := range known {
		if learning.Similarity(low, strings.ToLower(k)) >= SimilarityThreshold {
			return true
		}
	}
	return false
}

// ApplyRules adjusts plan for visual work. Requests that mention visuals or scenes
// get a scene builder right after the architect; all others drop it. A prefab
// mention alone does not keep the scene builder.
func ApplyRules(plan []string, prompt string) []string {
	p := strings.ToLower(prompt)
	plan = without(plan, agents.SceneBuilder)
	if !strings.Contains(p, "visual") && !strings.Contains(p, "scene") {
		return plan
	}

	at := len(plan)
	for i, a := range plan {
		if a == agents.Architect {
			at = i + 1
			break
		}
	}
	return append(plan[:at], append([]string{agents.SceneBuilder}, plan[at:]...)...)
}

func without(plan []string, drop ...string) []string {
	out := make([]string, 0, len(plan))
	for _, a := range plan {
		keep := true
		for _, d := range drop {
			if a == d {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, a)
		}
	}
	return out
}
