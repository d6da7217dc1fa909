// Package lint runs the static checkers used by review and refactor stages.
package lint

import (
	"context"
	"strings"

	"github.com/bitfield/script"

	"github.com/philjestin/studiomode/internal/gitutil"
)

// Result is one tool run. Output combines stdout and stderr.
type Result struct {
	Output string `json:"output"`
	ExitOK bool   `json:"exit_ok"`
}

// AnalyzerResult adds dead-code warnings to an analyzer build.
type AnalyzerResult struct {
	Result
	DeadCode []string `json:"dead_code"`
}

// ShellFunc runs a command line and returns its combined output.
type ShellFunc func(cmdline string) (string, error)

// Linter wraps flake8 and the dotnet tooling.
type Linter struct {
	Shell ShellFunc
}

// New returns a linter that runs real commands.
func New() *Linter {
	return &Linter{Shell: scriptShell}
}

func scriptShell(cmdline string) (string, error) {
	return script.Exec(cmdline).String()
}

func (l *Linter) run(ctx context.Context, cmdline string) Result {
	if ctx.Err() != nil {
		return Result{Output: ctx.Err().Error()}
	}
	shell := l.Shell
	if shell == nil {
		shell = scriptShell
	}
	out, err := shell(cmdline)
	if err != nil && out == "" {
		out = err.Error()
	}
	return Result{Output: out, ExitOK: err == nil}
}

// Flake8 lints Python sources under dir (the working directory when empty).
func (l *Linter) Flake8(ctx context.Context, dir string) Result {
	if dir == "" {
		return l.run(ctx, "flake8")
	}
	return l.run(ctx, "flake8 "+gitutil.Quote(dir))
}

// DotnetFormat formats project, or only verifies when verifyOnly is set.
func (l *Linter) DotnetFormat(ctx context.Context, project string, verifyOnly bool) Result {
	cmd := "dotnet format " + gitutil.Quote(project)
	if verifyOnly {
		cmd += " --verify-no-changes"
	}
	return l.run(ctx, cmd)
}

// Analyzers builds project with analyzers on and warnings as errors.
func (l *Linter) Analyzers(ctx context.Context, project string) AnalyzerResult {
	res := l.run(ctx, "dotnet build "+gitutil.Quote(project)+" /warnaserror /property:RunAnalyzers=true")
	return AnalyzerResult{Result: res, DeadCode: DeadCode(res.Output)}
}

// DeadCode extracts "is never used" warnings from build output.
func DeadCode(output string) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "warning") && strings.Contains(line, "is never used") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// Version returns the first line of `<tool> --version`, for health checks.
func Version(tool string) (string, error) {
	out, err := script.Exec(tool + " --version").First(1).String()
	return strings.TrimSpace(out), err
}
