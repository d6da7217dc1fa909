package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/events"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/optimizer"
	"github.com/philjestin/studiomode/internal/retry"
)

// ErrTestsFailed marks a tester stage that ran but reported failing tests.
var ErrTestsFailed = errors.New("tests failed")

// run is the state of one RunOnce call.
type run struct {
	id      string
	feature string
	prompt  string
	outDir  string
	steps   config.Pipeline

	// outputs keeps the last output of every stage.
	outputs map[string]agents.Output
}

// selectAgents picks the stage list: the configured list, else the planner's,
// minus the optimizer skips when optimize is set. A disabled build step drops the
// build stage.
func (r *Runner) selectAgents(ctx context.Context, steps config.Pipeline, prompt string, optimize bool) []string {
	names := steps.Agents
	if len(names) == 0 && r.Planner != nil {
		names = r.Planner.Plan(prompt)
	}
	if len(names) == 0 {
		names = agents.DefaultOrder
	}
	names = append([]string(nil), names...)

	if optimize {
		traces, err := r.Tracer.Load()
		if err != nil {
			logger.Warn("could not load traces", "error", err)
		}
		log, err := r.Learning.Log(ctx)
		if err != nil {
			logger.Warn("could not load learning log", "error", err)
		}
		s := optimizer.Suggest(traces, log)
		names = optimizer.ApplySkip(names, s.Skip)
		if s.Notes != "" {
			fmt.Println(s.Notes)
		}
		if len(s.Warn) > 0 {
			fmt.Printf("⚠ Possible skips: %v\n", s.Warn)
		}
	}

	if !steps.Enabled(config.StepBuild) {
		names = optimizer.ApplySkip(names, []string{optimizer.Flag(agents.Build)})
	}
	return names
}

// runStages runs the stages in order, each output merged into the next input.
func (r *Runner) runStages(ctx context.Context, rn *run, names []string) error {
	stages, err := r.Registry.Resolve(names)
	if err != nil {
		return err
	}

	in := agents.Input{"text": rn.prompt, "out_dir": rn.outDir}
	for i, a := range stages {
		printStep(i+1, len(stages), a.Name())

		out, err := r.runStage(ctx, rn, a, in)
		if err != nil {
			return err
		}
		rn.outputs[a.Name()] = out
		in = in.Merge(out)
	}
	return nil
}

// runStage runs one agent with fallback. A failure triggers an auto-fix; only a
// successful fix earns one more run.
func (r *Runner) runStage(ctx context.Context, rn *run, a agents.Agent, in agents.Input) (agents.Output, error) {
	name := a.Name()
	r.beginStage(rn, name)

	fb := r.Fallback
	fb.SkipOnFail = r.SkipOnFail[name]
	call := func(ctx context.Context) (map[string]any, error) {
		out, err := a.Run(ctx, in)
		if err != nil {
			return nil, err
		}
		if name == agents.Tester {
			if n := failedTests(out); n > 0 {
				return out, fmt.Errorf("%w: %d failing", ErrTestsFailed, n)
			}
		}
		return out, nil
	}

	out, err := retry.RunWithFallback(ctx, fb, name, call)
	if err != nil && ctx.Err() == nil {
		fmt.Printf("   🔧 %s failed, attempting auto-fix: %s\n", name, truncate(err.Error(), 120))
		if r.Fixer != nil && r.Fixer.Fix(ctx, rn.feature, name, err.Error()) {
			fmt.Printf("   🔁 Re-running %s\n", name)
			out, err = call(ctx)
		}
	}
	if errors.Is(err, ErrTestsFailed) && out != nil {
		// Failing tests are reported, not fatal.
		r.failStage(rn, name, err)
		return out, nil
	}
	if err != nil {
		r.failStage(rn, name, err)
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	r.completeStage(rn, name, out)
	return out, nil
}

func (r *Runner) beginStage(rn *run, agent string) {
	events.StageStarted(rn.id, rn.feature, agent)
	if err := r.Status.BeginStage(rn.feature, agent); err != nil {
		logger.Debug("stage not tracked", "feature", rn.feature, "agent", agent, "error", err)
	}
}

func (r *Runner) completeStage(rn *run, agent string, out map[string]any) {
	result := learning.Normalize(out)
	state := "success"
	if s, _ := out["status"].(string); s == retry.StatusSkipped {
		state = retry.StatusSkipped
	}
	events.StageCompleted(rn.id, rn.feature, agent, state, out)
	if err := r.Status.CompleteStage(rn.feature, agent, truncate(result, 200)); err != nil {
		logger.Debug("stage not tracked", "feature", rn.feature, "agent", agent, "error", err)
	}
}

func (r *Runner) failStage(rn *run, agent string, stageErr error) {
	events.StageCompleted(rn.id, rn.feature, agent, "failed", map[string]any{"error": stageErr.Error()})
	if err := r.Status.FailStage(rn.feature, agent, stageErr); err != nil {
		logger.Debug("stage not tracked", "feature", rn.feature, "agent", agent, "error", err)
	}
}

// failedTests reads the failed count of a tester output.
func failedTests(out map[string]any) int {
	switch v := out["failed"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
