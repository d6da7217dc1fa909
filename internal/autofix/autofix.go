// Package autofix re-invokes a failing stage's fixer with the error attached and
// applies the patch it returns.
package autofix

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/patch"
	"github.com/philjestin/studiomode/internal/store"
)

// Fixers maps a failing stage to the agent asked to fix it. Unlisted stages go to the coder.
var Fixers = map[string]string{
	agents.Coder:        agents.Coder,
	agents.Tester:       agents.Coder,
	agents.Refactor:     agents.Refactor,
	agents.SceneBuilder: agents.SceneBuilder,
	agents.Build:        agents.Build,
}

// Fixer runs auto-fix attempts.
type Fixer struct {
	Registry *agents.Registry

	// ScriptsRoot is where patches are applied.
	ScriptsRoot string

	// PatchDir keeps a copy of every patch as <feature>_<agent>.json.
	PatchDir string

	Learning *learning.Recorder
	Journal  *journal.Journal
}

// FixerFor returns the agent name asked to fix a failure of agent.
func FixerFor(agent string) string {
	if f, ok := Fixers[agent]; ok {
		return f
	}
	return agents.Coder
}

// Fix asks the mapped agent for a patch addressing errText and applies it.
// It reports whether a patch landed.
func (f *Fixer) Fix(ctx context.Context, feature, agent, errText string) bool {
	f.log(agent, "start", errText)

	fixer, ok := f.Registry.Get(FixerFor(agent))
	if !ok {
		f.log(agent, "error", "no fixer registered for "+FixerFor(agent))
		return false
	}

	out, err := fixer.Run(ctx, agents.Input{"feature": feature, "error": errText, "dry_run": true})
	if err != nil {
		f.log(agent, "error", err.Error())
		return false
	}

	mods, _ := out["modifications"].([]patch.Modification)
	if len(mods) == 0 {
		f.log(agent, "noop", "no patch returned")
		return false
	}
	p := &patch.Patch{Modifications: mods}

	patchFile := filepath.Join(f.PatchDir, fmt.Sprintf("%s_%s.json", feature, agent))
	if err := patch.Save(p, patchFile); err != nil {
		logger.Warn("could not keep auto-fix patch", "path", patchFile, "error", err)
	}

	diff, err := patch.Diff(p, f.ScriptsRoot)
	if err != nil {
		logger.Warn("could not diff auto-fix patch", "error", err)
	}

	if _, err := patch.Apply(p, f.ScriptsRoot); err != nil {
		f.log(agent, "error", err.Error())
		f.record(ctx, agent, errText, diff, store.ResultError)
		return false
	}

	f.log(agent, "success", "applied "+filepath.Base(patchFile))
	f.record(ctx, agent, errText, diff, store.ResultSuccess)
	return true
}

func (f *Fixer) log(agent, status, detail string) {
	if f.Journal != nil {
		f.Journal.LogAutoFix(agent, status, detail)
	}
}

func (f *Fixer) record(ctx context.Context, agent, errText, diff, result string) {
	if f.Learning == nil {
		return
	}
	if err := f.Learning.Record(ctx, journal.AutoFixPrefix+agent, errText, diff, result); err != nil {
		logger.Warn("learning record failed", "error", err)
	}
}
