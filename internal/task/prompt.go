package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PromptTask represents a task created from prompt text.
type PromptTask struct {
	id          string
	title       string
	description string
	feature     string
	source      Source
	createdAt   time.Time
}

// NewPromptTask creates a Task from an inline prompt. Empty overrides are derived from the prompt.
func NewPromptTask(prompt string, overrideTitle, overrideFeature string) Task {
	return newPromptTask(prompt, overrideTitle, overrideFeature, SourcePrompt)
}

func newPromptTask(prompt, overrideTitle, overrideFeature string, source Source) *PromptTask {
	title := overrideTitle
	if title == "" {
		title = extractTitle(prompt)
	}

	feature := overrideFeature
	if feature == "" {
		feature = title
	}

	return &PromptTask{
		id:          generateTaskID(),
		title:       title,
		description: strings.TrimSpace(prompt),
		feature:     SanitizeFeatureName(feature),
		source:      source,
		createdAt:   time.Now(),
	}
}

// GetID returns the auto-generated task ID.
func (t *PromptTask) GetID() string {
	return t.id
}

// GetTitle returns the extracted or overridden title.
func (t *PromptTask) GetTitle() string {
	return t.title
}

// GetDescription returns the full prompt text.
func (t *PromptTask) GetDescription() string {
	return t.description
}

// GetFeatureName returns the sanitized feature name.
func (t *PromptTask) GetFeatureName() string {
	return t.feature
}

// GetMetadata returns task metadata.
func (t *PromptTask) GetMetadata() Metadata {
	return Metadata{
		Source:    t.source,
		CreatedAt: t.createdAt,
	}
}

// FileTask represents a task read from a file.
type FileTask struct {
	*PromptTask
	filePath string
}

// NewFileTask creates a Task from a file. Without an override the feature is
// named after the file's base name.
func NewFileTask(filePath string, overrideTitle, overrideFeature string) (Task, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	if overrideFeature == "" {
		overrideFeature = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	return &FileTask{
		PromptTask: newPromptTask(string(content), overrideTitle, overrideFeature, SourceFile),
		filePath:   filePath,
	}, nil
}

// GetMetadata returns task metadata with file path.
func (t *FileTask) GetMetadata() Metadata {
	metadata := t.PromptTask.GetMetadata()
	metadata.FilePath = t.filePath
	return metadata
}
