package task

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPromptTask(t *testing.T) {
	prompt := "# Double jump\n\nLet the player jump again while airborne"

	task := NewPromptTask(prompt, "", "")

	if _, err := uuid.Parse(task.GetID()); err != nil {
		t.Errorf("expected a uuid ID, got %s", task.GetID())
	}

	if task.GetTitle() != "Double jump" {
		t.Errorf("expected title %s, got %s", "Double jump", task.GetTitle())
	}

	if task.GetDescription() != prompt {
		t.Error("description should match original prompt")
	}

	if task.GetFeatureName() != "double_jump" {
		t.Errorf("expected feature double_jump, got %s", task.GetFeatureName())
	}

	metadata := task.GetMetadata()
	if metadata.Source != SourcePrompt {
		t.Errorf("expected source %s, got %s", SourcePrompt, metadata.Source)
	}
	if metadata.CreatedAt.IsZero() {
		t.Error("expected a creation time")
	}
}

func TestPromptTask_WithOverrides(t *testing.T) {
	task := NewPromptTask("Do some work", "Custom Title", "Wall Run")

	if task.GetTitle() != "Custom Title" {
		t.Errorf("expected overridden title, got %s", task.GetTitle())
	}

	if task.GetFeatureName() != "wall_run" {
		t.Errorf("expected sanitized override, got %s", task.GetFeatureName())
	}
}

func TestFileTask(t *testing.T) {
	tmpDir := t.TempDir()
	taskFile := filepath.Join(tmpDir, "grapple-hook.md")

	content := "# Grappling hook\n\nFire a rope at ledges and swing"
	if err := os.WriteFile(taskFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	task, err := NewFileTask(taskFile, "", "")
	if err != nil {
		t.Fatalf("failed to create file task: %v", err)
	}

	if task.GetTitle() != "Grappling hook" {
		t.Errorf("expected extracted title, got %s", task.GetTitle())
	}

	if task.GetFeatureName() != "grapple-hook" {
		t.Errorf("expected feature named after the file, got %s", task.GetFeatureName())
	}

	if task.GetDescription() != content {
		t.Error("description should match file content")
	}

	metadata := task.GetMetadata()
	if metadata.Source != SourceFile {
		t.Errorf("expected source %s, got %s", SourceFile, metadata.Source)
	}
	if metadata.FilePath != taskFile {
		t.Errorf("expected file path %s, got %s", taskFile, metadata.FilePath)
	}
}

func TestFileTask_NonexistentFile(t *testing.T) {
	_, err := NewFileTask("/nonexistent/file.txt", "", "")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestCreateFromPrompt_Empty(t *testing.T) {
	_, err := CreateFromPrompt("   \n", "", "")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestCreateFromFile_EmptyPath(t *testing.T) {
	if _, err := CreateFromFile("", "", ""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestCreateFromReader(t *testing.T) {
	input := "Inventory grid\nItems stack up to 99\nEND\nignored after marker\n"

	task, err := CreateFromReader(strings.NewReader(input), "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if task.GetDescription() != "Inventory grid\nItems stack up to 99" {
		t.Errorf("unexpected description: %q", task.GetDescription())
	}
	if task.GetFeatureName() != "inventory_grid" {
		t.Errorf("expected inventory_grid, got %s", task.GetFeatureName())
	}
	if task.GetMetadata().Source != SourceStdin {
		t.Errorf("expected source %s, got %s", SourceStdin, task.GetMetadata().Source)
	}
}

func TestCreateFromReader_Empty(t *testing.T) {
	_, err := CreateFromReader(strings.NewReader("  END  \n"), "", "")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
}

func TestReadUntilEnd_EOF(t *testing.T) {
	got, err := ReadUntilEnd(strings.NewReader("no marker here\nsecond line"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "no marker here\nsecond line" {
		t.Errorf("expected all lines, got %q", got)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		expected string
	}{
		{
			name:     "markdown header",
			prompt:   "# Add checkpoints\n\nDetails...",
			expected: "Add checkpoints",
		},
		{
			name:     "double hash",
			prompt:   "## Fix wall clipping\n\nMore details",
			expected: "Fix wall clipping",
		},
		{
			name:     "first line no header",
			prompt:   "Enemy patrol routes\n\nWith waypoints",
			expected: "Enemy patrol routes",
		},
		{
			name:     "empty lines",
			prompt:   "\n\nActual feature\n\nDetails",
			expected: "Actual feature",
		},
		{
			name:     "very long first line",
			prompt:   "This is a very long task description that exceeds fifty characters and should be truncated",
			expected: "This is a very long task description that exceeds ",
		},
		{
			name:     "empty prompt",
			prompt:   "",
			expected: "Untitled feature",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractTitle(tt.prompt)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestSanitizeFeatureName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "spaces to underscores",
			input:    "Double Jump",
			expected: "double_jump",
		},
		{
			name:     "remove special chars",
			input:    "Fix: Bug#123",
			expected: "fix_bug123",
		},
		{
			name:     "slashes and dots",
			input:    "ui/menu v2.0",
			expected: "ui_menu_v2_0",
		},
		{
			name:     "hyphens kept",
			input:    "wall-run",
			expected: "wall-run",
		},
		{
			name:     "consecutive separators",
			input:    "Add   Multiple   Spaces",
			expected: "add_multiple_spaces",
		},
		{
			name:     "long name truncated",
			input:    "This is a very long feature name that should be truncated",
			expected: "this_is_a_very_long_feature_name_that_sh",
		},
		{
			name:     "only special chars",
			input:    "!!!",
			expected: "untitled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFeatureName(tt.input)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestGenerateTaskID(t *testing.T) {
	if generateTaskID() == generateTaskID() {
		t.Error("generated IDs should be unique")
	}
}
