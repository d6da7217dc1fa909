package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/philjestin/studiomode/internal/engine"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/lint"
	"github.com/philjestin/studiomode/internal/testrunner"
)

// Inspector verdicts.
const (
	VerdictPass     = "Pass"
	VerdictNeedsFix = "Needs Fix"
)

// Review statuses.
const (
	ReviewSuccess = "success"
	ReviewFailed  = "failed"
)

// ReviewReport is the file the review agent leaves in the work dir.
const ReviewReport = "review_report.json"

const refactorCap = 1000

// TesterAgent runs the engine test suite.
type TesterAgent struct {
	Runner *testrunner.Runner
}

// Name implements Agent.
func (a *TesterAgent) Name() string { return Tester }

// Run returns {passed, failed, failed_names, logs, report_path}.
func (a *TesterAgent) Run(ctx context.Context, _ Input) (Output, error) {
	res, err := a.Runner.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run tests: %w", err)
	}
	names := res.FailedNames
	if names == nil {
		names = []string{}
	}
	return Output{
		"passed":       res.PassedCount,
		"failed":       res.Failed,
		"failed_names": names,
		"logs":         res.Output,
		"report_path":  res.ReportPath,
	}, nil
}

// FeatureInspectorAgent checks that a feature left the expected traces in the project map.
type FeatureInspectorAgent struct {
	ProjectMap *index.ProjectMap
	Index      *index.FeatureIndex

	// Catalog is asset_catalog.json; only its asset count is reported.
	Catalog string

	// OutDir receives feature_inspection.md unless the input sets out_dir.
	OutDir string

	Journal *journal.Journal
}

// Name implements Agent.
func (a *FeatureInspectorAgent) Name() string { return FeatureInspector }

// Inspect lists the problems found for feature.
func (a *FeatureInspectorAgent) Inspect(feature string) ([]string, error) {
	entry, _, err := a.ProjectMap.Feature(feature)
	if err != nil {
		return nil, err
	}

	var issues []string
	if len(entry.Files) == 0 {
		issues = append(issues, "missing files entry in project_map")
	} else {
		if !anyFile(entry.Files, func(p string) bool { return strings.HasSuffix(p, ".cs") }) {
			issues = append(issues, "no C# code files")
		}
		if !anyFile(entry.Files, func(p string) bool { return strings.Contains(p, "Tests") }) {
			issues = append(issues, "no test files")
		}
		if !anyFile(entry.Files, func(p string) bool { return strings.HasSuffix(p, ".unity") }) {
			issues = append(issues, "no scene files")
		}
	}
	if len(entry.Assets) == 0 {
		issues = append(issues, "no assets listed")
	}

	known, err := a.Index.HasName(feature)
	if err != nil {
		return nil, err
	}
	if !known {
		issues = append(issues, "feature not in feature_index.json")
	}
	return issues, nil
}

// Run writes feature_inspection.md and labels failing features needs_fix.
func (a *FeatureInspectorAgent) Run(_ context.Context, in Input) (Output, error) {
	feature := in.String("feature")
	if feature == "" {
		feature = "unknown"
	}
	outDir := in.String("out_dir")
	if outDir == "" {
		outDir = a.OutDir
	}
	note(a.Journal, FeatureInspector, "start "+feature)

	issues, err := a.Inspect(feature)
	if err != nil {
		return nil, err
	}

	verdict := VerdictPass
	if len(issues) > 0 {
		verdict = VerdictNeedsFix
		if err := a.Index.MarkNeedsFix(feature); err != nil {
			return nil, err
		}
	}

	lines := []string{
		"# Feature Inspection",
		"",
		"**Feature:** " + feature,
		"**Verdict:** " + verdict,
		"",
	}
	if len(issues) > 0 {
		lines = append(lines, "## Issues")
		for _, i := range issues {
			lines = append(lines, "- "+i)
		}
	} else {
		lines = append(lines, "No issues found.")
	}
	lines = append(lines, "", fmt.Sprintf("Assets in catalog: %d", catalogCount(a.Catalog)))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	report := filepath.Join(outDir, "feature_inspection.md")
	if err := os.WriteFile(report, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return nil, fmt.Errorf("write inspection report: %w", err)
	}

	return Output{"verdict": verdict, "issues": len(issues), "report": report}, nil
}

func anyFile(files []string, match func(string) bool) bool {
	for _, f := range files {
		if match(f) {
			return true
		}
	}
	return false
}

func catalogCount(path string) int {
	if path == "" {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var catalog struct {
		Assets []json.RawMessage `json:"assets"`
	}
	if json.Unmarshal(data, &catalog) != nil {
		return 0
	}
	return len(catalog.Assets)
}

// ReviewAgent runs the static checkers over the Python tooling and the C# project.
type ReviewAgent struct {
	Linter *lint.Linter

	// Project is the C# project path handed to dotnet.
	Project string

	// Dir is linted with flake8 and receives review_report.json.
	Dir string

	Journal *journal.Journal
}

// Name implements Agent.
func (a *ReviewAgent) Name() string { return Review }

// Run writes review_report.json and returns {status, report}.
func (a *ReviewAgent) Run(ctx context.Context, _ Input) (Output, error) {
	note(a.Journal, Review, "start")

	flake := a.Linter.Flake8(ctx, a.Dir)
	format := a.Linter.DotnetFormat(ctx, a.Project, false)
	roslyn := a.Linter.Analyzers(ctx, a.Project)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := map[string]string{
		"flake8":        flake.Output,
		"dotnet_format": format.Output,
		"roslyn":        roslyn.Output,
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(a.Dir, ReviewReport)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write review report: %w", err)
	}

	status := ReviewSuccess
	if !flake.ExitOK || !format.ExitOK || !roslyn.ExitOK {
		status = ReviewFailed
		note(a.Journal, Review, "issues found")
	} else {
		note(a.Journal, Review, "clean")
	}
	return Output{"status": status, "report": path}, nil
}

// BuildAgent builds the engine project.
type BuildAgent struct {
	Builder *engine.Builder

	// Target is used when the input carries none.
	Target string

	Journal *journal.Journal
}

// Name implements Agent.
func (a *BuildAgent) Name() string { return Build }

// Run returns {target, artifact, status}. A missing build output is a status, not an error.
func (a *BuildAgent) Run(ctx context.Context, in Input) (Output, error) {
	target := in.String("target")
	if target == "" {
		target = a.Target
	}
	if target == "" {
		target = engine.DefaultTarget
	}

	note(a.Journal, Build, "start "+target)
	res, err := a.Builder.Build(ctx, target)
	if err != nil {
		return nil, err
	}
	note(a.Journal, Build, res.Status)
	return Output{"target": res.Target, "artifact": res.Artifact, "status": res.Status}, nil
}

// RefactorAgent runs the analyzers for dead code and verifies formatting.
type RefactorAgent struct {
	Linter  *lint.Linter
	Project string
}

// Name implements Agent.
func (a *RefactorAgent) Name() string { return Refactor }

// Run fails when the analyzers or the format check fail.
func (a *RefactorAgent) Run(ctx context.Context, _ Input) (Output, error) {
	roslyn := a.Linter.Analyzers(ctx, a.Project)
	if !roslyn.ExitOK {
		return nil, errors.New("Roslyn analyzers failed: " + strings.TrimSpace(capText(roslyn.Output, refactorCap)))
	}
	format := a.Linter.DotnetFormat(ctx, a.Project, true)
	if !format.ExitOK {
		return nil, errors.New("dotnet format failed: " + strings.TrimSpace(capText(format.Output, refactorCap)))
	}

	dead := roslyn.DeadCode
	if dead == nil {
		dead = []string{}
	}
	return Output{
		"returncode": 0,
		"dead_code":  dead,
		"stdout":     capText(roslyn.Output+format.Output, refactorCap),
		"stderr":     "",
	}, nil
}
