// Package task turns a prompt, a request file or stdin into a feature request
// the pipeline can run.
package task

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source represents the origin of a task.
type Source string

const (
	SourcePrompt Source = "prompt"
	SourceFile   Source = "file"
	SourceStdin  Source = "stdin"
)

// Metadata holds additional task information.
type Metadata struct {
	Source    Source
	CreatedAt time.Time
	FilePath  string // For file-based tasks
}

// Task is a feature request, regardless of source.
type Task interface {
	GetID() string
	GetTitle() string
	GetDescription() string
	GetFeatureName() string
	GetMetadata() Metadata
}

var (
	invalidFeatureChars = regexp.MustCompile(`[^a-z0-9\-_]`)
	repeatedSeparators  = regexp.MustCompile(`[-_]{2,}`)
)

// generateTaskID creates a unique task ID.
func generateTaskID() string {
	return uuid.NewString()
}

// extractTitle attempts to extract a meaningful title from prompt text.
func extractTitle(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	firstLine := strings.TrimSpace(lines[0])

	// Markdown header: # Title or ## Title
	if strings.HasPrefix(firstLine, "#") {
		title := strings.TrimSpace(strings.TrimLeft(firstLine, "#"))
		if title != "" {
			return truncateTitle(title)
		}
	}

	if firstLine != "" {
		return truncateTitle(firstLine)
	}
	return "Untitled feature"
}

// truncateTitle limits title length.
func truncateTitle(title string) string {
	const maxLen = 50
	if len(title) <= maxLen {
		return title
	}
	return title[:maxLen]
}

// SanitizeFeatureName makes s safe as a backup key and reports directory name.
func SanitizeFeatureName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Spaces and path separators become underscores
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ".", "_").Replace(s)
	s = invalidFeatureChars.ReplaceAllString(s, "")
	s = repeatedSeparators.ReplaceAllStringFunc(s, func(m string) string { return m[:1] })
	s = strings.Trim(s, "-_")

	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-_")
	}
	if s == "" {
		return "untitled"
	}
	return s
}
