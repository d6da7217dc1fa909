package status

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	return NewTracker(filepath.Join(t.TempDir(), "pipeline_status.json"))
}

func TestLifecycle(t *testing.T) {
	tr := newTracker(t)
	if err := tr.Init("run-1", []string{"jump", "inventory"}, true); err != nil {
		t.Fatal(err)
	}

	if err := tr.Start("jump"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tr.BeginStage("jump", "CoderAgent")
	tr.CompleteStage("jump", "CoderAgent", "success")
	tr.BeginStage("jump", "TesterAgent")
	tr.FailStage("jump", "TesterAgent", errors.New("2 failed"))

	if err := tr.Finish("jump", true, "ci_reports/jump/summary.html", map[string]string{"CoderAgent": "success"}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	fs, ok := tr.Get("jump")
	if !ok {
		t.Fatal("Expected jump to be tracked")
	}
	if fs.Status != StatePassed {
		t.Errorf("Expected passed, got %s", fs.Status)
	}
	if fs.Ended == nil || fs.Started == nil {
		t.Error("Expected timestamps to be set")
	}
	if len(fs.Stages) != 2 || fs.Stages[1].Status != StageFailed || fs.Stages[1].Error != "2 failed" {
		t.Errorf("Unexpected stages: %+v", fs.Stages)
	}
	if !fs.IsMulti {
		t.Error("Expected multi flag on feature")
	}

	// Persisted and reloadable
	reloaded := NewTracker(tr.Path())
	if got, _ := reloaded.Get("jump"); got.Status != StatePassed {
		t.Errorf("Expected reloaded status passed, got %s", got.Status)
	}
	if reloaded.Summary()[StateQueued] != 1 {
		t.Errorf("Expected one queued feature, got %v", reloaded.Summary())
	}
}

func TestInvalidTransitions(t *testing.T) {
	tr := newTracker(t)
	tr.Init("run", []string{"a"}, false)

	if err := tr.Finish("a", true, "", nil); err == nil {
		t.Error("Expected queued -> passed to fail")
	}
	tr.Start("a")
	if err := tr.Start("a"); err == nil {
		t.Error("Expected running -> running to fail")
	}
	tr.Finish("a", false, "", nil)

	// Re-run of a finished feature is allowed.
	if err := tr.Start("a"); err != nil {
		t.Errorf("Expected re-run to be allowed, got %v", err)
	}
	if fs, _ := tr.Get("a"); fs.Ended != nil || len(fs.Stages) != 0 {
		t.Error("Expected re-run to clear previous run data")
	}
}

func TestStageOnUnknownFeature(t *testing.T) {
	tr := newTracker(t)
	err := tr.BeginStage("ghost", "CoderAgent")
	if !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("Expected ErrUnknownFeature, got %v", err)
	}
}

func TestCompleteWithoutOpenStage(t *testing.T) {
	tr := newTracker(t)
	tr.Start("a")
	if err := tr.CompleteStage("a", "CoderAgent", "ok"); err == nil {
		t.Error("Expected error without an open stage")
	}
}

func TestCorruptFileLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline_status.json")
	os.WriteFile(path, []byte("{broken"), 0644)

	tr := NewTracker(path)
	if len(tr.Features()) != 0 {
		t.Errorf("Expected empty features, got %v", tr.Features())
	}
	if doc := Load(filepath.Join(t.TempDir(), "missing.json")); doc.Features == nil {
		t.Error("Expected non-nil features map for missing file")
	}
}

func TestFailRecordsError(t *testing.T) {
	tr := newTracker(t)
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	tr.Start("a")
	tr.now = func() time.Time { return fixed.Add(90 * time.Second) }
	tr.Fail("a", errors.New("tests failed"))

	fs, _ := tr.Get("a")
	if fs.Status != StateFailed || fs.Error != "tests failed" {
		t.Errorf("Unexpected status %+v", fs)
	}
	if fs.Duration != 90 {
		t.Errorf("Expected 90s duration, got %v", fs.Duration)
	}
}

func TestFeaturesSorted(t *testing.T) {
	tr := newTracker(t)
	tr.Init("r", []string{"zeta", "alpha", "mid"}, true)

	names := tr.Features()
	if names[0] != "alpha" || names[2] != "zeta" {
		t.Errorf("Expected sorted names, got %v", names)
	}
}

func TestSnapshotsDoNotAliasTracker(t *testing.T) {
	tr := newTracker(t)
	if err := tr.Init("run-1", []string{"jump"}, false); err != nil {
		t.Fatal(err)
	}
	tr.Start("jump")
	tr.BeginStage("jump", "CoderAgent")
	tr.CompleteStage("jump", "CoderAgent", "success")
	results := map[string]string{"CoderAgent": "success"}
	if err := tr.Finish("jump", true, "summary.html", results); err != nil {
		t.Fatal(err)
	}
	results["CoderAgent"] = "error"

	fs, _ := tr.Get("jump")
	fs.Stages[0].Status = StageFailed
	fs.AgentResults["TesterAgent"] = "error"

	doc := tr.Document()
	doc.Features["jump"].Stages[0].Result = "tampered"
	doc.Features["jump"].AgentResults["CoderAgent"] = "error"

	got, _ := tr.Get("jump")
	if got.Stages[0].Status != StageSuccess || got.Stages[0].Result != "success" {
		t.Errorf("Expected stages unchanged, got %+v", got.Stages)
	}
	if len(got.AgentResults) != 1 || got.AgentResults["CoderAgent"] != "success" {
		t.Errorf("Expected agent results unchanged, got %v", got.AgentResults)
	}
}
