package rollback

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/philjestin/studiomode/internal/backup"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/patch"
)

func setup(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	ws := filepath.Join(dir, "ws")
	os.MkdirAll(filepath.Join(ws, "Scripts"), 0755)
	return &Manager{
		Backups:     backup.NewManager(filepath.Join(dir, "_backups"), 0),
		Workspace:   ws,
		ScriptsRoot: filepath.Join(ws, "Scripts"),
		Journal:     journal.New(filepath.Join(dir, "agent_journal.log")),
	}, ws
}

func TestApplyEmergencyPatch(t *testing.T) {
	m, ws := setup(t)
	os.WriteFile(filepath.Join(ws, "Scripts", "Good.cs"), []byte("good"), 0644)
	if _, err := m.SaveSuccessState("jump", ws); err != nil {
		t.Fatal(err)
	}

	// Break the workspace after the success state.
	os.WriteFile(filepath.Join(ws, "Scripts", "Broken.cs"), []byte("broken"), 0644)

	patchFile := filepath.Join(t.TempDir(), PatchFile)
	patch.Save(&patch.Patch{Modifications: []patch.Modification{
		{Path: "Fix.cs", Action: patch.ActionOverwrite, Content: "fixed\n"},
	}}, patchFile)

	ok, err := m.ApplyEmergencyPatch("jump", patchFile)
	if err != nil || !ok {
		t.Fatalf("Expected patch applied, got %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(ws, "Scripts", "Broken.cs")); !os.IsNotExist(err) {
		t.Error("Expected workspace restored before patching")
	}
	if data, _ := os.ReadFile(filepath.Join(ws, "Scripts", "Fix.cs")); string(data) != "fixed\n" {
		t.Errorf("Expected patch content, got %q", data)
	}

	lines, _ := m.Journal.Entries()
	if !strings.Contains(strings.Join(lines, "\n"), "[CI] Emergency Patch") {
		t.Errorf("Expected journal entry, got %v", lines)
	}
}

func TestApplyEmergencyPatchMissingOrInvalid(t *testing.T) {
	m, _ := setup(t)

	ok, err := m.ApplyEmergencyPatch("jump", filepath.Join(t.TempDir(), "nope.json"))
	if ok || err != nil {
		t.Errorf("Expected false for missing patch, got %v %v", ok, err)
	}

	bad := filepath.Join(t.TempDir(), PatchFile)
	os.WriteFile(bad, []byte("{not json"), 0644)
	ok, err = m.ApplyEmergencyPatch("jump", bad)
	if ok || err != nil {
		t.Errorf("Expected false for invalid patch, got %v %v", ok, err)
	}
}

func TestApplyEmergencyPatchWithoutBackup(t *testing.T) {
	m, ws := setup(t)
	patchFile := filepath.Join(t.TempDir(), PatchFile)
	patch.Save(&patch.Patch{Modifications: []patch.Modification{
		{Path: "Fix.cs", Action: patch.ActionOverwrite, Content: "fixed\n"},
	}}, patchFile)

	ok, err := m.ApplyEmergencyPatch("never-saved", patchFile)
	if err != nil || !ok {
		t.Fatalf("Expected patch applied despite missing backup, got %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(ws, "Scripts", "Fix.cs")); err != nil {
		t.Error(err)
	}
}

func TestApplyEmergencyPatchRejectsEscape(t *testing.T) {
	m, ws := setup(t)
	patchFile := filepath.Join(t.TempDir(), PatchFile)
	patch.Save(&patch.Patch{Modifications: []patch.Modification{
		{Path: `..\..\evil.cs`, Action: patch.ActionOverwrite, Content: "evil\n"},
	}}, patchFile)

	ok, err := m.ApplyEmergencyPatch("jump", patchFile)
	if ok || err != nil {
		t.Errorf("Expected escaping patch to be rejected, got %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(ws), "evil.cs")); !os.IsNotExist(err) {
		t.Error("Expected nothing written outside the scripts root")
	}
}

