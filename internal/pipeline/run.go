package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/events"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/store"
)

// SingleFeature is the feature name of a run without a batch file.
const SingleFeature = "single"

// RunOnce runs the stages and the CI tail for feature and returns the summary
// path and the per-agent results.
func (r *Runner) RunOnce(ctx context.Context, feature, prompt string, optimize bool) (string, map[string]string, error) {
	return r.runOnce(ctx, feature, prompt, optimize, r.reportsDir(feature))
}

func (r *Runner) runOnce(ctx context.Context, feature, prompt string, optimize bool, outDir string) (string, map[string]string, error) {
	steps, err := config.LoadPipeline(r.Config.Paths.PipelineConfig)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", nil, fmt.Errorf("create reports dir: %w", err)
	}

	rn := &run{
		id:      r.runID(),
		feature: feature,
		prompt:  prompt,
		outDir:  outDir,
		steps:   steps,
		outputs: map[string]agents.Output{},
	}

	names := r.selectAgents(ctx, steps, prompt, optimize)
	fmt.Printf("🎮 Feature: %s\n", feature)
	fmt.Printf("   Agents: %s\n", strings.Join(names, " → "))
	logger.Info("pipeline started", "feature", feature, "agents", len(names), "out_dir", outDir)

	if err := r.runStages(ctx, rn, names); err != nil {
		return "", nil, err
	}
	return r.ci(ctx, rn)
}

// Run runs a single feature as the only entry of a fresh status document.
func (r *Runner) Run(ctx context.Context, feature, prompt string, optimize bool) (report.FeatureResult, error) {
	if feature == "" {
		feature = SingleFeature
	}
	if err := r.Status.Init(uuid.NewString(), []string{feature}, false); err != nil {
		return report.FeatureResult{}, err
	}
	return r.RunFeature(ctx, feature, prompt, optimize)
}

// RunFeature backs up the project, runs the feature and records the outcome.
// A failed run restores the backup and marks the feature needs-fix; a passed
// one saves the success state.
func (r *Runner) RunFeature(ctx context.Context, name, prompt string, optimize bool) (report.FeatureResult, error) {
	cfg := r.Config
	outDir := r.reportsDir(name)
	bg := context.WithoutCancel(ctx)

	if _, err := r.Backups.Save(name, cfg.ProjectPath); err != nil {
		logger.Warn("pre-run backup failed", "feature", name, "error", err)
	}

	runID := r.runID()
	if err := r.Status.Start(name); err != nil {
		logger.Warn("could not mark feature running", "feature", name, "error", err)
	}
	events.FeatureUpdated(runID, name, "running")

	rowID := uuid.NewString()
	if r.Runs != nil {
		if err := r.Runs.StartRun(bg, store.Run{ID: rowID, Feature: name}); err != nil {
			logger.Warn("could not record run", "feature", name, "error", err)
		}
	}

	start := time.Now()
	summary, results, runErr := r.runOnce(ctx, name, prompt, optimize, outDir)

	status := report.FeatureSuccess
	if runErr != nil {
		status = report.FeatureError
		summary = filepath.Join(outDir, report.SummaryName)
		fmt.Printf("❌ Feature %s failed: %v\n", name, runErr)
		if _, err := r.Backups.Restore(name, cfg.ProjectPath); err != nil {
			logger.Warn("restore after failure failed", "feature", name, "error", err)
		}
	}
	rel := r.relative(summary)

	if runErr != nil {
		if err := r.Status.Fail(name, runErr); err != nil {
			logger.Warn("could not mark feature failed", "feature", name, "error", err)
		}
		if r.Index != nil {
			if err := r.Index.MarkNeedsFix(name); err != nil {
				logger.Warn("could not mark feature needs-fix", "feature", name, "error", err)
			}
		}
	} else {
		if err := r.Status.Finish(name, true, rel, results); err != nil {
			logger.Warn("could not mark feature passed", "feature", name, "error", err)
		}
		if _, err := r.Rollback.SaveSuccessState(name, cfg.ProjectPath); err != nil {
			logger.Warn("could not save success state", "feature", name, "error", err)
		}
	}
	events.FeatureUpdated(runID, name, status)

	if r.Runs != nil {
		if err := r.Runs.FinishRun(bg, rowID, status, rel); err != nil {
			logger.Warn("could not finish run", "feature", name, "error", err)
		}
	}

	res := report.FeatureResult{
		Name:    name,
		Status:  status,
		Time:    seconds(time.Since(start)),
		Summary: rel,
	}
	printResult(res, results)
	return res, runErr
}

// RunBatch runs every feature in order, each with its own reports dir, and
// writes the multi-feature summary. Failed features do not stop the batch.
func (r *Runner) RunBatch(ctx context.Context, batch []config.BatchFeature, optimize bool) (string, []report.FeatureResult, error) {
	names := make([]string, 0, len(batch))
	for _, f := range batch {
		names = append(names, f.Name)
	}
	runID := uuid.NewString()
	if err := r.Status.Init(runID, names, true); err != nil {
		return "", nil, err
	}
	for _, n := range names {
		events.FeatureQueued(runID, n)
	}

	start := time.Now()
	results := make([]report.FeatureResult, 0, len(batch))
	for _, f := range batch {
		if err := ctx.Err(); err != nil {
			return "", results, err
		}
		fmt.Printf("\n=== %s ===\n", f.Name)
		res, _ := r.RunFeature(ctx, f.Name, f.Prompt, optimize)
		results = append(results, res)
	}

	path, err := report.MultiFeature(r.Config.ReportsDir, results, time.Since(start).Round(10*time.Millisecond))
	if err != nil {
		return "", results, err
	}
	fmt.Printf("Multi summary: %s\n", path)
	return path, results, nil
}

// reportsDir is the reports dir of feature: per feature in a batch, shared otherwise.
func (r *Runner) reportsDir(feature string) string {
	if r.Status.Document().Multi {
		return filepath.Join(r.Config.ReportsDir, feature)
	}
	return r.Config.ReportsDir
}

func (r *Runner) runID() string {
	if id := r.Status.Document().RunID; id != "" {
		return id
	}
	return uuid.NewString()
}

// relative returns path relative to the reports dir, slash separated.
func (r *Runner) relative(path string) string {
	rel, err := filepath.Rel(r.Config.ReportsDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// printResult prints the final banner.
func printResult(res report.FeatureResult, results map[string]string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	if res.Status == report.FeatureSuccess {
		fmt.Println("🎉 FEATURE COMPLETE")
	} else {
		fmt.Println("💥 FEATURE FAILED")
	}
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("   🎫 Feature: %s\n", res.Name)
	fmt.Printf("   ⏱️  Time: %.2fs\n", res.Time)
	fmt.Printf("   📄 Summary: %s\n", res.Summary)
	for _, p := range report.Pairs(results) {
		fmt.Printf("   • %s: %s\n", p.Name, p.Value)
	}
	fmt.Println()
}
