package testrunner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleReport = `<?xml version="1.0" encoding="utf-8"?>
<test-run total="3">
  <test-suite type="Assembly" name="Generated">
    <test-suite type="TestFixture" name="JumpTests">
      <test-case name="Creates" fullname="JumpTests.Creates" result="Passed" />
      <test-case name="Jumps" fullname="JumpTests.Jumps" result="Failed" />
    </test-suite>
    <test-case name="Other" result="Passed" />
  </test-suite>
</test-run>`

// fakeEngine writes report to the -testResults path, when non-empty.
func fakeEngine(t *testing.T, report string, gotArgs *[]string) CommandFunc {
	return func(ctx context.Context, name string, args ...string) (string, string, error) {
		*gotArgs = args
		for i, a := range args {
			if a == "-testResults" && report != "" {
				if err := os.WriteFile(args[i+1], []byte(report), 0644); err != nil {
					t.Fatal(err)
				}
			}
		}
		return strings.Repeat("o", 1500), "warn", nil
	}
}

func TestRunParsesReport(t *testing.T) {
	var args []string
	r := New("/opt/Unity", "/proj")
	r.ReportDir = t.TempDir()
	r.Exec = fakeEngine(t, sampleReport, &args)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.PassedCount != 2 || res.Failed != 1 {
		t.Errorf("Unexpected counts %+v", res)
	}
	if res.Passed {
		t.Error("Expected overall failure")
	}
	if len(res.FailedNames) != 1 || res.FailedNames[0] != "JumpTests.Jumps" {
		t.Errorf("Unexpected failed names %v", res.FailedNames)
	}
	if strings.Contains(res.Output, strings.Repeat("o", 1001)) {
		t.Error("Expected stdout to be capped at 1000 chars")
	}

	joined := strings.Join(args, " ")
	for _, want := range []string{"-batchmode -nographics", "-projectPath /proj", "-testPlatform EditMode", "-quit"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected args to contain %q, got %s", want, joined)
		}
	}
}

func TestRunMissingReport(t *testing.T) {
	var args []string
	r := New("/opt/Unity", "/proj")
	r.ReportDir = t.TempDir()
	r.Exec = fakeEngine(t, "", &args)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 || res.Passed {
		t.Errorf("Expected 0/0 failure, got %+v", res)
	}
	if !strings.Contains(res.Output, MissingReportNote) {
		t.Errorf("Expected missing report note, got %q", res.Output)
	}
}

func TestRunEngineErrorWithoutReport(t *testing.T) {
	r := New("/missing/Unity", "/proj")
	r.ReportDir = t.TempDir()
	r.Exec = func(ctx context.Context, name string, args ...string) (string, string, error) {
		return "", "", errors.New("exec: not found")
	}

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Error("Expected failure")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xml")
	os.WriteFile(path, []byte(`<test-run><test-case result="Passed"/><test-case result="Passed"/></test-run>`), 0644)

	res, err := ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed || res.Total != 2 {
		t.Errorf("Expected 2 passing tests, got %+v", res)
	}
}
