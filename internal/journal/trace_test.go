package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTracerRecordAndLoad(t *testing.T) {
	tr := NewTracer(filepath.Join(t.TempDir(), "agent_trace.log"))
	start := time.Now().UTC()

	tr.Record(TraceEntry{Agent: "CoderAgent", Action: "run", StartTime: start, EndTime: start.Add(2 * time.Second), Status: "success"})
	tr.Record(TraceEntry{Agent: "TesterAgent", Action: "run", StartTime: start, EndTime: start.Add(time.Second), Status: "error"})
	tr.Record(TraceEntry{Agent: "CoderAgent", Action: "run", StartTime: start, EndTime: start, Status: "success"})

	got, err := tr.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got["CoderAgent"]) != 2 || len(got["TesterAgent"]) != 1 {
		t.Fatalf("Unexpected grouping: %v", got)
	}
	if got["CoderAgent"][0].ID == "" {
		t.Error("Expected generated ID")
	}
	if d := got["CoderAgent"][0].Duration(); d != 2*time.Second {
		t.Errorf("Expected 2s, got %v", d)
	}
}

func TestTracerSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_trace.log")
	os.WriteFile(path, []byte("{not json\n{\"agent\":\"A\",\"status\":\"success\"}\n"), 0644)

	got, err := NewTracer(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got["A"]) != 1 {
		t.Errorf("Expected one valid entry, got %v", got)
	}
}

func TestTracerMissingFile(t *testing.T) {
	got, err := NewTracer(filepath.Join(t.TempDir(), "nope")).Load()
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty map, got %v, %v", got, err)
	}
}
