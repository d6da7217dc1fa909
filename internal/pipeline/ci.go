package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/assets"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/engine"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/notify"
	"github.com/philjestin/studiomode/internal/publish"
	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/review"
	"github.com/philjestin/studiomode/internal/rollback"
)

// Result keys beyond the agent names.
const (
	ResultReviewPanel = "AIReviewPanel"
	ResultPublish     = "Publish"
)

// Result values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ReviewReports are copied from the work dir into the reports dir.
var ReviewReports = []string{"review_report.md", agents.ReviewReport}

// ciState collects the CI tail outcomes of one run.
type ciState struct {
	tests      agents.Output
	testErr    error
	inspection agents.Output
	lore       agents.Output
	build      agents.Output
	buildRan   bool
	verdict    string
	published  string
	urls       []string
	assetNames []any
}

// ci runs everything after the agent stages and returns the summary path and the
// per-agent results.
func (r *Runner) ci(ctx context.Context, rn *run) (string, map[string]string, error) {
	cfg := r.Config
	st := &ciState{published: StatusSuccess}

	copyReviewReports(cfg.WorkDir, rn.outDir)

	printStep(1, 6, "Tests & inspection")
	if out, ok := rn.outputs[agents.Tester]; ok {
		st.tests = out
	} else {
		st.tests, st.testErr = r.runAgent(ctx, agents.Tester, agents.Input{})
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	var err error
	st.inspection, err = r.runAgent(ctx, agents.FeatureInspector, agents.Input{"feature": rn.feature, "out_dir": rn.outDir})
	if err != nil {
		logger.Warn("feature inspection failed", "feature", rn.feature, "error", err)
	}
	st.assetNames = catalogAssets(cfg.Paths.AssetCatalog)
	st.lore, err = r.runAgent(ctx, agents.LoreValidator, agents.Input{
		"feature":     rn.feature,
		"description": rn.prompt,
		"assets":      st.assetNames,
		"dialogues":   dialogues(filepath.Join(cfg.WorkDir, "narrative_events")),
		"out_dir":     rn.outDir,
	})
	if err != nil {
		logger.Warn("lore validation failed", "feature", rn.feature, "error", err)
	}

	if rn.steps.Enabled(config.StepBuild) {
		printStep(2, 6, "Build")
		st.buildRan = true
		if out, ok := rn.outputs[agents.Build]; ok {
			st.build = out
		} else if st.build, err = r.runAgent(ctx, agents.Build, agents.Input{}); err != nil {
			logger.Warn("build failed", "feature", rn.feature, "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	r.merge(rn, st)

	printStep(3, 6, "Escalation")
	if r.Escalator != nil {
		if path, err := r.Escalator.Run(ctx, rn.outDir); err != nil {
			logger.Warn("escalation failed", "error", err)
		} else if path != "" {
			fmt.Printf("   🚨 Escalated: %s\n", path)
		}
	}
	patchFile := filepath.Join(rn.outDir, rollback.PatchFile)
	if _, err := os.Stat(patchFile); err == nil && r.Rollback != nil {
		applied, err := r.Rollback.ApplyEmergencyPatch(rn.feature, patchFile)
		if err != nil {
			logger.Warn("emergency patch failed", "feature", rn.feature, "error", err)
		} else if applied {
			fmt.Println("   🩹 Emergency patch applied")
		}
	}

	printStep(4, 6, "Review panel")
	if err := r.reviewPanel(ctx, rn, st); err != nil {
		return "", nil, err
	}

	printStep(5, 6, "Publish & assets")
	if rn.steps.Enabled(config.StepPublish) {
		if err := r.publishArtifacts(ctx, rn.outDir); err != nil {
			st.published = StatusError
			fmt.Printf("   ❌ Publish failed: %v\n", err)
		}
	}
	if rn.steps.Enabled(config.StepQC) {
		r.assetPipeline(rn.outDir)
	}
	st.urls = publish.ArtifactURLs(cfg, rn.outDir)

	printStep(6, 6, "Reports")
	results := st.results()
	summary, err := r.reports(ctx, rn, st, results)
	if err != nil {
		return "", nil, err
	}

	if r.Notifier != nil {
		r.Notifier.NotifyAll(ctx, notify.Message{
			SummaryPath:   summary,
			ChangelogPath: cfg.Paths.Changelog,
			Artifacts:     st.urls,
		})
	}
	return summary, results, nil
}

func (r *Runner) runAgent(ctx context.Context, name string, in agents.Input) (agents.Output, error) {
	a, ok := r.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	return a.Run(ctx, in)
}

// merge hands the feature to the team lead with the test metrics.
func (r *Runner) merge(rn *run, st *ciState) {
	if r.Lead == nil {
		return
	}
	metrics := map[string]any{
		"tests_passed": st.tests["passed"],
		"tests_failed": st.tests["failed"],
	}
	if files, ok := rn.outputs[agents.Coder]["files"]; ok {
		metrics["files"] = files
	}
	if err := r.Lead.MergeFeature(rn.feature, metrics); err != nil {
		logger.Warn("team lead merge failed", "feature", rn.feature, "error", err)
	}
}

func (r *Runner) reviewPanel(ctx context.Context, rn *run, st *ciState) error {
	get := func(name string) agents.Agent {
		a, ok := r.Registry.Get(name)
		if !ok {
			return nil
		}
		return a
	}
	tests := agents.Func{AgentName: agents.Tester, Fn: func(context.Context, agents.Input) (agents.Output, error) {
		return st.tests, st.testErr
	}}

	panel := &review.Panel{
		Inspector: get(agents.FeatureInspector),
		Lore:      get(agents.LoreValidator),
		Refactor:  get(agents.Refactor),
		Tests:     tests,
		Repo:      r.Config.ProjectPath,
	}
	res, err := panel.Run(ctx, review.Request{
		Feature:     rn.feature,
		Description: rn.prompt,
		Assets:      agents.Input{"assets": st.assetNames}.Strings("assets"),
		OutDir:      rn.outDir,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("review panel failed", "feature", rn.feature, "error", err)
		st.verdict = review.Accept
		return nil
	}
	st.verdict = res.Verdict
	fmt.Printf("   ⚖️  Verdict: %s\n", res.Verdict)
	return nil
}

func (r *Runner) publishArtifacts(ctx context.Context, dir string) error {
	if r.Publish != nil {
		_, err := r.Publish(ctx, dir)
		return err
	}
	p, err := publish.New(r.Config, r.Journal)
	if err != nil {
		return err
	}
	_, err = p.Publish(ctx, dir)
	return err
}

// assetPipeline runs QC and the catalog over the asset dir. Failures are logged.
func (r *Runner) assetPipeline(outDir string) {
	dir := r.Config.Paths.Assets
	issues, err := assets.RunQC(dir, outDir)
	if err != nil {
		fmt.Printf("   ❌ Asset pipeline failed: %v\n", err)
		return
	}
	if len(issues) > 0 {
		fmt.Printf("   ⚠️  %d asset issue(s)\n", len(issues))
	}
	if _, err := assets.Catalog(dir, outDir); err != nil {
		logger.Warn("asset catalog failed", "error", err)
	}
	if _, err := report.AssetsReport(dir, filepath.Join(outDir, assets.QCReport), outDir, report.NewMeta(r.Config.ProjectPath)); err != nil {
		logger.Warn("assets report failed", "error", err)
	}
}

// reports writes the changelog, stats, final summary, summary.html, the CI
// overview, the meta insights and the agent analytics.
func (r *Runner) reports(ctx context.Context, rn *run, st *ciState, results map[string]string) (string, error) {
	cfg := r.Config
	meta := report.NewMeta(cfg.ProjectPath)

	var changelog string
	if path, err := report.WriteChangelog(r.Journal, cfg.Paths.Changelog); err != nil {
		logger.Warn("changelog failed", "error", err)
	} else if data, err := os.ReadFile(path); err == nil {
		changelog = string(data)
	}

	calls, err := r.Journal.CountByAgent()
	if err != nil {
		logger.Warn("could not count journal calls", "error", err)
	}
	log, err := r.Learning.Log(ctx)
	if err != nil {
		logger.Warn("could not load learning log", "error", err)
	}
	traces, err := r.Tracer.Load()
	if err != nil {
		logger.Warn("could not load traces", "error", err)
	}
	stats := report.CollectStats(report.Sources{Calls: calls, Learning: log, Traces: traces})
	if _, err := report.AgentStats(rn.outDir, stats, meta); err != nil {
		logger.Warn("agent stats failed", "error", err)
	}

	entries, _ := r.Journal.Entries()
	abs, _ := filepath.Abs(cfg.Paths.Changelog)
	final := report.FinalData{Entries: entries, Artifacts: st.urls, Changelog: abs}
	if st.buildRan || st.tests != nil || st.testErr != nil {
		final.CI = &report.CIResults{
			Tests:      results[agents.Tester],
			Build:      results[agents.Build],
			Inspection: verdictOf(st.inspection, "verdict"),
			Lore:       verdictOf(st.lore, "status"),
			Review:     st.verdict,
		}
	}
	if _, text, err := report.FinalSummary(rn.outDir, final); err != nil {
		logger.Warn("final summary failed", "error", err)
	} else {
		fmt.Println(text)
	}

	summary, err := report.Summary(rn.outDir, report.SummaryData{
		Feature:   rn.feature,
		Artifacts: st.urls,
		Results:   results,
		Changelog: changelog,
		Meta:      meta,
	})
	if err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	fmt.Printf("   📄 Summary HTML: %s\n", summary)

	monitor := fmt.Sprintf("http://localhost:%d/ci-status", cfg.Server.MonitorPort)
	if _, err := report.Overview(rn.outDir, r.Status.Document(), stats, monitor); err != nil {
		logger.Warn("ci overview failed", "error", err)
	}
	if _, err := report.MetaInsights(rn.outDir, report.Analyze(log, traces)); err != nil {
		logger.Warn("meta insights failed", "error", err)
	}

	parsed := journal.ParseLines(entries)
	if _, err := report.WriteScores(rn.outDir, cfg.Paths.Scores, report.Scores(parsed, log), meta); err != nil {
		logger.Warn("agent scores failed", "error", err)
	}
	if _, err := report.LearningReport(rn.outDir, report.LearningStats(log), meta); err != nil {
		logger.Warn("learning report failed", "error", err)
	}
	if _, err := report.TraceReport(rn.outDir, report.SummarizeTraces(traces), meta); err != nil {
		logger.Warn("trace report failed", "error", err)
	}
	rows := report.Monitor(report.MonitorSources{Journal: parsed, Learning: log, Traces: traces})
	if _, err := report.SelfMonitor(rn.outDir, rows); err != nil {
		logger.Warn("self monitor failed", "error", err)
	}
	return summary, nil
}

func (st *ciState) results() map[string]string {
	results := map[string]string{
		agents.FeatureInspector: StatusError,
		agents.LoreValidator:    StatusError,
		ResultReviewPanel:       st.verdict,
		ResultPublish:           st.published,
	}
	if verdictOf(st.inspection, "verdict") == agents.VerdictPass {
		results[agents.FeatureInspector] = StatusSuccess
	}
	if verdictOf(st.lore, "status") == agents.LorePass {
		results[agents.LoreValidator] = StatusSuccess
	}
	if st.tests != nil || st.testErr != nil {
		results[agents.Tester] = StatusSuccess
		if st.testErr != nil || failedTests(st.tests) > 0 {
			results[agents.Tester] = StatusError
		}
	}
	if st.buildRan {
		results[agents.Build] = StatusError
		if verdictOf(st.build, "status") == engine.StatusSuccess {
			results[agents.Build] = StatusSuccess
		}
	}
	return results
}

func verdictOf(out agents.Output, key string) string {
	s, _ := out[key].(string)
	return s
}

func copyReviewReports(from, to string) {
	for _, name := range ReviewReports {
		data, err := os.ReadFile(filepath.Join(from, name))
		if err != nil {
			continue
		}
		if err := os.WriteFile(filepath.Join(to, name), data, 0644); err != nil {
			logger.Warn("could not copy review report", "file", name, "error", err)
		}
	}
}

// catalogAssets reads the "assets" list of asset_catalog.json.
func catalogAssets(path string) []any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var catalog struct {
		Assets []any `json:"assets"`
	}
	if err := json.Unmarshal(data, &catalog); err != nil {
		logger.Warn("invalid asset catalog", "path", path, "error", err)
		return nil
	}
	names := make([]any, 0, len(catalog.Assets))
	for _, a := range catalog.Assets {
		if m, ok := a.(map[string]any); ok {
			if n, ok := m["name"]; ok {
				a = n
			} else if p, ok := m["path"]; ok {
				a = p
			}
		}
		names = append(names, a)
	}
	return names
}

// dialogues concatenates the narrative event files in dir.
func dialogues(dir string) string {
	files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	var sb strings.Builder
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}
