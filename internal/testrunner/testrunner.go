// Package testrunner runs the engine's EditMode tests and parses the NUnit XML report.
package testrunner

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// MissingReportNote is appended to the output when the engine wrote no results file.
const MissingReportNote = "results.xml not generated"

// outputCap bounds the stdout and stderr kept in a TestResult.
const outputCap = 1000

// TestResult contains the outcome of test execution.
type TestResult struct {
	Passed      bool
	Total       int
	PassedCount int
	Failed      int
	FailedNames []string
	Output      string
	ReportPath  string
	Duration    time.Duration
}

// CommandFunc runs name with args and returns captured output.
type CommandFunc func(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)

// Runner runs EditMode tests through the engine CLI.
type Runner struct {
	// CLI is the engine executable.
	CLI string

	// ProjectPath is passed as -projectPath.
	ProjectPath string

	// ReportDir receives results.xml. A temp dir is used when empty.
	ReportDir string

	// Exec runs the command; defaults to os/exec.
	Exec CommandFunc
}

// New creates a runner.
func New(cli, projectPath string) *Runner {
	return &Runner{CLI: cli, ProjectPath: projectPath, Exec: execCommand}
}

// Args returns the engine command line for a results path.
func (r *Runner) Args(resultsPath string) []string {
	return []string{
		"-batchmode", "-nographics",
		"-projectPath", r.ProjectPath,
		"-runTests", "-testPlatform", "EditMode",
		"-testResults", resultsPath,
		"-quit",
	}
}

// Run executes the tests. A failing engine process is not an error; the report decides.
func (r *Runner) Run(ctx context.Context) (*TestResult, error) {
	dir := r.ReportDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "studio-tests-")
		if err != nil {
			return nil, err
		}
		dir = tmp
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	xmlPath := filepath.Join(dir, "results.xml")
	os.Remove(xmlPath)

	run := r.Exec
	if run == nil {
		run = execCommand
	}

	start := time.Now()
	stdout, stderr, runErr := run(ctx, r.CLI, r.Args(xmlPath)...)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &TestResult{ReportPath: xmlPath, Duration: time.Since(start)}
	extra := ""

	f, err := os.Open(xmlPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		extra = MissingReportNote
	case err != nil:
		return nil, err
	default:
		perr := parseReport(f, result)
		f.Close()
		if perr != nil {
			extra = fmt.Sprintf("parse results: %v", perr)
		}
	}

	result.Output = fmt.Sprintf("STDOUT:\n%s\n----\nSTDERR:\n%s\n%s", truncate(stdout), truncate(stderr), extra)
	if runErr != nil && result.Total == 0 && extra == "" {
		extra = runErr.Error()
		result.Output += extra
	}
	result.Passed = result.Total > 0 && result.Failed == 0
	return result, nil
}

// ParseFile counts test cases in an existing report.
func ParseFile(path string) (*TestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	result := &TestResult{ReportPath: path}
	if err := parseReport(f, result); err != nil {
		return nil, err
	}
	result.Passed = result.Total > 0 && result.Failed == 0
	return result, nil
}

// parseReport counts every test-case element at any depth.
func parseReport(r io.Reader, result *TestResult) error {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "test-case" {
			continue
		}

		var outcome, name string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "result":
				outcome = a.Value
			case "fullname":
				name = a.Value
			case "name":
				if name == "" {
					name = a.Value
				}
			}
		}

		result.Total++
		if outcome == "Passed" {
			result.PassedCount++
		} else {
			result.Failed++
			result.FailedNames = append(result.FailedNames, name)
		}
	}
}

func truncate(s string) string {
	if len(s) <= outputCap {
		return s
	}
	return s[:outputCap]
}

func execCommand(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
