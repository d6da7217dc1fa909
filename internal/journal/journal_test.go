package journal

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestLogAndParse(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "agent_journal.log"))

	j.Log("CoderAgent", "generated 2 files")
	j.LogAutoFix("TesterAgent", "start", "NullReferenceException")

	entries, err := j.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Agent != "CoderAgent" || entries[0].Action != "generated 2 files" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Agent != "AutoFix:TesterAgent" || entries[1].Action != "start: NullReferenceException" {
		t.Errorf("Unexpected auto-fix entry: %+v", entries[1])
	}
	if _, err := time.Parse(time.RFC3339Nano, entries[0].Time); err != nil {
		t.Errorf("Expected RFC3339 timestamp, got %q", entries[0].Time)
	}
}

func TestMissingJournalIsEmpty(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "none.log"))

	lines, err := j.Entries()
	if err != nil || len(lines) != 0 {
		t.Errorf("Expected empty entries, got %v, %v", lines, err)
	}
	tail, err := j.Tail(5)
	if err != nil || len(tail) != 0 {
		t.Errorf("Expected empty tail, got %v, %v", tail, err)
	}
}

func TestTail(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "agent_journal.log"))
	for i := 0; i < 10; i++ {
		j.Log("Agent", strings.Repeat("x", i+1))
	}

	tail, err := j.Tail(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(tail))
	}
	if !strings.HasSuffix(tail[2], strings.Repeat("x", 10)) {
		t.Errorf("Expected newest line last, got %q", tail[2])
	}
}

func TestParseSkipsForeignLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent_journal.log")
	os.WriteFile(path, []byte("garbage\n2024-01-01T00:00:00Z [Coder] ok\n\n"), 0644)

	entries, err := New(path).Parse()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Agent != "Coder" {
		t.Errorf("Expected only the well-formed line, got %+v", entries)
	}
}

func TestGrepAndCount(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "agent_journal.log"))
	j.Log("Coder", "ok")
	j.Log("Coder", "Error: compile failed")
	j.Log("Tester", "failed 2 tests")

	lines, err := j.Grep(regexp.MustCompile(`(?i)error|failed`))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Errorf("Expected 2 matching lines, got %d", len(lines))
	}

	counts, _ := j.CountByAgent()
	if counts["Coder"] != 2 || counts["Tester"] != 1 {
		t.Errorf("Unexpected counts %v", counts)
	}
}

func TestLogFlattensNewlines(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "agent_journal.log"))
	j.Log("Coder", "line one\nline two")

	lines, _ := j.Entries()
	if len(lines) != 1 {
		t.Fatalf("Expected a single line, got %d", len(lines))
	}
}
