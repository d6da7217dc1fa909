package task

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EndMarker terminates a prompt typed on stdin.
const EndMarker = "END"

// ErrEmptyPrompt is returned when no prompt text was given.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// InputMode represents how the task was specified.
type InputMode string

const (
	ModePrompt InputMode = "prompt"
	ModeFile   InputMode = "file"
	ModeStdin  InputMode = "stdin"
)

// CreateFromPrompt creates a Task from an inline prompt.
func CreateFromPrompt(prompt string, overrideTitle, overrideFeature string) (Task, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	return NewPromptTask(prompt, overrideTitle, overrideFeature), nil
}

// CreateFromFile creates a Task from a file.
func CreateFromFile(filePath string, overrideTitle, overrideFeature string) (Task, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	return NewFileTask(filePath, overrideTitle, overrideFeature)
}

// CreateFromReader reads a prompt from r until a line holding only END, or EOF.
func CreateFromReader(r io.Reader, overrideTitle, overrideFeature string) (Task, error) {
	prompt, err := ReadUntilEnd(r)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	return newPromptTask(prompt, overrideTitle, overrideFeature, SourceStdin), nil
}

// ReadUntilEnd returns the lines of r before the END marker.
func ReadUntilEnd(r io.Reader) (string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == EndMarker {
			break
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}
