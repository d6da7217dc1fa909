package lint

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeShell struct {
	calls   []string
	outputs map[string]string
	fail    map[string]bool
}

func (f *fakeShell) run(cmdline string) (string, error) {
	f.calls = append(f.calls, cmdline)
	for prefix, out := range f.outputs {
		if strings.HasPrefix(cmdline, prefix) {
			if f.fail[prefix] {
				return out, errors.New("exit status 1")
			}
			return out, nil
		}
	}
	return "", nil
}

func TestAnalyzersCollectDeadCode(t *testing.T) {
	fs := &fakeShell{outputs: map[string]string{
		"dotnet build": "Jump.cs(3,9): warning CS0169: The field 'Jump._x' is never used\nBuild succeeded.\n",
	}}
	l := &Linter{Shell: fs.run}

	res := l.Analyzers(context.Background(), "/proj/Game.csproj")
	if !res.ExitOK {
		t.Error("Expected success")
	}
	if len(res.DeadCode) != 1 || !strings.Contains(res.DeadCode[0], "CS0169") {
		t.Errorf("Unexpected dead code %v", res.DeadCode)
	}
	if fs.calls[0] != "dotnet build '/proj/Game.csproj' /warnaserror /property:RunAnalyzers=true" {
		t.Errorf("Unexpected command %q", fs.calls[0])
	}
}

func TestDotnetFormatVerify(t *testing.T) {
	fs := &fakeShell{
		outputs: map[string]string{"dotnet format": "Formatting needed"},
		fail:    map[string]bool{"dotnet format": true},
	}
	l := &Linter{Shell: fs.run}

	res := l.DotnetFormat(context.Background(), "/proj", true)
	if res.ExitOK {
		t.Error("Expected failure")
	}
	if !strings.HasSuffix(fs.calls[0], "--verify-no-changes") {
		t.Errorf("Expected verify flag, got %q", fs.calls[0])
	}
}

func TestFlake8(t *testing.T) {
	fs := &fakeShell{}
	l := &Linter{Shell: fs.run}

	if res := l.Flake8(context.Background(), ""); !res.ExitOK {
		t.Error("Expected clean flake8")
	}
	l.Flake8(context.Background(), "tools")
	if fs.calls[1] != "flake8 'tools'" {
		t.Errorf("Unexpected command %q", fs.calls[1])
	}
}

func TestCancelledContextSkipsRun(t *testing.T) {
	fs := &fakeShell{}
	l := &Linter{Shell: fs.run}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if res := l.Flake8(ctx, ""); res.ExitOK {
		t.Error("Expected failure on cancelled context")
	}
	if len(fs.calls) != 0 {
		t.Error("Expected no command to run")
	}
}
