// Package healthcheck verifies the engine toolchain and the model server are available.
// Run these checks at startup to fail fast with helpful error messages.
package healthcheck

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckTimeout bounds each dependency check.
const CheckTimeout = 5 * time.Second

// LLMName labels the model server result.
const LLMName = "llm"

// Dependency represents an external command to check.
type Dependency struct {
	Name        string
	Command     string
	Args        []string
	Required    bool
	Description string
}

// Tagger lists the models served by the LLM server.
type Tagger interface {
	Tags(ctx context.Context) ([]string, error)
}

// Result represents the health check result for a dependency.
type Result struct {
	Name      string
	Available bool
	Version   string
	Required  bool
	Error     error
}

// Results holds all health check results.
type Results struct {
	All     []Result
	Passed  bool
	Missing []string
}

// DefaultDependencies returns the tools the pipeline shells out to.
// engineCLI is the engine executable; empty skips it.
func DefaultDependencies(engineCLI string) []Dependency {
	deps := []Dependency{
		{
			Name:        "git",
			Command:     "git",
			Args:        []string{"--version"},
			Required:    true,
			Description: "Git version control",
		},
		{
			Name:        "dotnet",
			Command:     "dotnet",
			Args:        []string{"--version"},
			Required:    false, // Only C# formatting uses it
			Description: ".NET SDK for format and analyzers",
		},
		{
			Name:        "flake8",
			Command:     "flake8",
			Args:        []string{"--version"},
			Required:    false, // Only the tooling review uses it
			Description: "Python linter for pipeline tooling",
		},
	}
	if engineCLI != "" {
		deps = append(deps, Dependency{
			Name:        "engine",
			Command:     engineCLI,
			Args:        []string{"-version"},
			Required:    true,
			Description: "Game engine CLI for tests and builds",
		})
	}
	return deps
}

// Check verifies the dependencies, and the LLM server when llm is non-nil,
// concurrently. Results keep the order of deps with the LLM last.
func Check(ctx context.Context, deps []Dependency, llm Tagger) *Results {
	n := len(deps)
	if llm != nil {
		n++
	}
	all := make([]Result, n)

	var g errgroup.Group
	for i, dep := range deps {
		g.Go(func() error {
			all[i] = checkDependency(ctx, dep)
			return nil
		})
	}
	if llm != nil {
		g.Go(func() error {
			all[n-1] = checkLLM(ctx, llm)
			return nil
		})
	}
	g.Wait()

	results := &Results{All: all, Passed: true}
	for _, r := range all {
		if !r.Available && r.Required {
			results.Passed = false
			results.Missing = append(results.Missing, r.Name)
		}
	}
	return results
}

// checkDependency checks if a single dependency is available.
func checkDependency(ctx context.Context, dep Dependency) Result {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, dep.Command, dep.Args...)
	output, err := cmd.Output()

	if err != nil {
		return Result{
			Name:      dep.Name,
			Available: false,
			Required:  dep.Required,
			Error:     fmt.Errorf("%s not found: %w", dep.Name, err),
		}
	}

	// Extract version from output (first line usually)
	version := strings.TrimSpace(string(output))
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}

	return Result{
		Name:      dep.Name,
		Available: true,
		Version:   version,
		Required:  dep.Required,
	}
}

func checkLLM(ctx context.Context, llm Tagger) Result {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	models, err := llm.Tags(ctx)
	if err != nil {
		return Result{Name: LLMName, Required: true, Error: fmt.Errorf("llm server unreachable: %w", err)}
	}
	version := fmt.Sprintf("%d model(s)", len(models))
	if len(models) > 0 {
		version += ": " + strings.Join(models, ", ")
	}
	return Result{Name: LLMName, Available: true, Version: version, Required: true}
}

// Format returns a human-readable summary of health check results.
func (r *Results) Format() string {
	var sb strings.Builder

	sb.WriteString("Dependency Health Check\n")
	sb.WriteString("═══════════════════════════════════════\n")

	for _, result := range r.All {
		switch {
		case result.Available:
			sb.WriteString(fmt.Sprintf("  ✅ %s: %s\n", result.Name, result.Version))
		case result.Required:
			sb.WriteString(fmt.Sprintf("  ❌ %s: not found\n", result.Name))
		default:
			sb.WriteString(fmt.Sprintf("  ⚠️  %s: not found (optional)\n", result.Name))
		}
	}

	sb.WriteString("═══════════════════════════════════════\n")

	if r.Passed {
		sb.WriteString("All required dependencies available.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Missing required: %s\n", strings.Join(r.Missing, ", ")))
	}

	return sb.String()
}

// Error returns an error if any required dependencies are missing.
func (r *Results) Error() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("missing required dependencies: %s", strings.Join(r.Missing, ", "))
}
