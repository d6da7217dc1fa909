package healthcheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/philjestin/studiomode/internal/llm"
)

type fakeTagger struct {
	models []string
	err    error
}

func (f fakeTagger) Tags(context.Context) ([]string, error) {
	return f.models, f.err
}

func TestDefaultDependencies(t *testing.T) {
	deps := DefaultDependencies("/opt/unity/Editor/Unity")

	names := make(map[string]Dependency)
	for _, d := range deps {
		names[d.Name] = d
	}

	if !names["git"].Required {
		t.Error("git should be required")
	}
	if names["flake8"].Required {
		t.Error("flake8 should be optional")
	}
	engine, ok := names["engine"]
	if !ok {
		t.Fatal("engine dependency missing")
	}
	if engine.Command != "/opt/unity/Editor/Unity" || !engine.Required {
		t.Errorf("unexpected engine dependency: %+v", engine)
	}

	for _, d := range DefaultDependencies("") {
		if d.Name == "engine" {
			t.Error("engine should be skipped without a CLI path")
		}
	}
}

func TestCheckDependency_Git(t *testing.T) {
	result := checkDependency(context.Background(), Dependency{
		Name:    "git",
		Command: "git",
		Args:    []string{"--version"},
	})

	if !result.Available {
		t.Skip("git not available in this environment")
	}
	if !strings.Contains(result.Version, "git version") {
		t.Errorf("Version should contain 'git version', got: %s", result.Version)
	}
}

func TestCheckDependency_NotFound(t *testing.T) {
	result := checkDependency(context.Background(), Dependency{
		Name:     "nonexistent",
		Command:  "this-command-does-not-exist-12345",
		Required: true,
	})

	if result.Available {
		t.Error("Nonexistent command should not be available")
	}
	if !result.Required {
		t.Error("Required flag should carry into the result")
	}
	if result.Error == nil {
		t.Error("Should have error for missing command")
	}
}

func TestCheck_KeepsOrder(t *testing.T) {
	deps := []Dependency{
		{Name: "first", Command: "echo", Args: []string{"one"}, Required: true},
		{Name: "second", Command: "echo", Args: []string{"two"}, Required: true},
		{Name: "third", Command: "echo", Args: []string{"three"}, Required: true},
	}

	results := Check(context.Background(), deps, fakeTagger{models: []string{"mistral"}})

	if !results.Passed {
		t.Fatalf("Should pass, missing: %v", results.Missing)
	}
	want := []string{"first", "second", "third", LLMName}
	if len(results.All) != len(want) {
		t.Fatalf("Should have %d results, got %d", len(want), len(results.All))
	}
	for i, name := range want {
		if results.All[i].Name != name {
			t.Errorf("result %d: want %s, got %s", i, name, results.All[i].Name)
		}
	}
	if results.All[1].Version != "two" {
		t.Errorf("Version should be the first output line, got %q", results.All[1].Version)
	}
	if results.All[3].Version != "1 model(s): mistral" {
		t.Errorf("unexpected llm version: %q", results.All[3].Version)
	}
}

func TestCheck_MissingRequired(t *testing.T) {
	deps := []Dependency{
		{Name: "echo", Command: "echo", Args: []string{"hello"}, Required: true},
		{Name: "missing", Command: "nonexistent-xyz", Required: true},
	}

	results := Check(context.Background(), deps, nil)

	if results.Passed {
		t.Error("Should fail when required dep missing")
	}
	if len(results.Missing) != 1 || results.Missing[0] != "missing" {
		t.Errorf("Expected only 'missing' in missing list, got: %v", results.Missing)
	}
}

func TestCheck_MissingOptional(t *testing.T) {
	deps := []Dependency{
		{Name: "echo", Command: "echo", Args: []string{"hello"}, Required: true},
		{Name: "optional-missing", Command: "nonexistent-xyz", Required: false},
	}

	results := Check(context.Background(), deps, nil)

	if !results.Passed {
		t.Error("Should pass when only optional dep missing")
	}
	if len(results.Missing) != 0 {
		t.Errorf("Missing list should only contain required deps, got: %v", results.Missing)
	}
	if results.All[1].Available {
		t.Error("Optional missing dep should be in results as unavailable")
	}
}

func TestCheck_LLMDown(t *testing.T) {
	results := Check(context.Background(), nil, fakeTagger{err: errors.New("connection refused")})

	if results.Passed {
		t.Error("Should fail when the llm server is unreachable")
	}
	if len(results.Missing) != 1 || results.Missing[0] != LLMName {
		t.Errorf("Expected llm in missing list, got: %v", results.Missing)
	}
}

func TestCheck_LLMServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[{"name":"mistral"},{"name":"deepseek-coder:6.7b"}]}`))
	}))
	defer srv.Close()

	results := Check(context.Background(), nil, llm.New(srv.URL))

	if !results.Passed {
		t.Fatalf("Should pass, got: %+v", results.All)
	}
	if got := results.All[0].Version; got != "2 model(s): mistral, deepseek-coder:6.7b" {
		t.Errorf("unexpected version: %q", got)
	}
}

func TestResults_Format(t *testing.T) {
	results := &Results{
		All: []Result{
			{Name: "git", Available: true, Version: "git version 2.40.0", Required: true},
			{Name: "engine", Available: false, Required: true},
			{Name: "flake8", Available: false},
		},
		Passed:  false,
		Missing: []string{"engine"},
	}

	output := results.Format()

	if !strings.Contains(output, "✅ git: git version 2.40.0") {
		t.Error("Format should contain checkmark for available")
	}
	if !strings.Contains(output, "❌ engine") {
		t.Error("Format should contain X for missing required")
	}
	if !strings.Contains(output, "flake8: not found (optional)") {
		t.Error("Format should mark optional deps")
	}
	if !strings.Contains(output, "Missing required: engine") {
		t.Error("Format should list missing deps")
	}
}

func TestResults_FormatAllPassing(t *testing.T) {
	results := &Results{
		All:    []Result{{Name: "git", Available: true, Version: "git version 2.40.0"}},
		Passed: true,
	}

	if !strings.Contains(results.Format(), "All required") {
		t.Error("Format should indicate all passed")
	}
}

func TestResults_Error(t *testing.T) {
	passing := &Results{Passed: true}
	if passing.Error() != nil {
		t.Error("Passing results should have nil error")
	}

	failing := &Results{Passed: false, Missing: []string{"dep1", "dep2"}}
	err := failing.Error()
	if err == nil {
		t.Fatal("Failing results should have error")
	}
	if !strings.Contains(err.Error(), "dep1") || !strings.Contains(err.Error(), "dep2") {
		t.Errorf("Error should list missing deps, got: %s", err)
	}
}
