package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	t.Setenv("STUDIO_DEBUG", "")
	t.Setenv("STUDIO_LOG_LEVEL", "")
	t.Setenv("STUDIO_LOG_FORMAT", "")

	opts := DefaultOptions()

	if opts.Level != LevelInfo {
		t.Errorf("Expected default level Info, got %v", opts.Level)
	}
	if opts.Output != os.Stderr {
		t.Error("Expected default output to be os.Stderr")
	}
	if opts.JSON {
		t.Error("Expected JSON to be false by default")
	}
}

func TestDefaultOptionsFromEnv(t *testing.T) {
	t.Setenv("STUDIO_LOG_LEVEL", "warn")
	t.Setenv("STUDIO_LOG_FORMAT", "JSON")
	t.Setenv("STUDIO_DEBUG", "")

	opts := DefaultOptions()
	if opts.Level != LevelWarn {
		t.Errorf("Expected level Warn, got %v", opts.Level)
	}
	if !opts.JSON {
		t.Error("Expected JSON output")
	}

	t.Setenv("STUDIO_DEBUG", "1")
	if DefaultOptions().Level != LevelDebug {
		t.Error("STUDIO_DEBUG=1 should force debug level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"chatty":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Options{Level: LevelDebug, Output: &buf})
	logger.Info("test message", "key", "value")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Errorf("Output should contain message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Output should contain key=value, got: %s", output)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Options{Level: LevelInfo, Output: &buf, JSON: true})
	logger.Info("json message", "agent", "CoderAgent")

	output := buf.String()
	if !strings.Contains(output, `"msg":"json message"`) {
		t.Errorf("Expected JSON msg field, got: %s", output)
	}
	if !strings.Contains(output, `"agent":"CoderAgent"`) {
		t.Errorf("Expected JSON agent field, got: %s", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer

	logger := New(Options{Level: LevelWarn, Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Error("Info should be filtered at warn level")
	}
	if !strings.Contains(output, "shown") {
		t.Error("Warn should be logged at warn level")
	}
}

func TestWithAgent(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: LevelInfo, Output: &buf})

	WithAgent("TesterAgent", "jump").Info("stage done")

	output := buf.String()
	if !strings.Contains(output, "agent=TesterAgent") || !strings.Contains(output, "feature=jump") {
		t.Errorf("Expected agent and feature attributes, got: %s", output)
	}
}
