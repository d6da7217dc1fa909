// Package journal keeps the plain-text agent journal and the JSONL trace log.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bitfield/script"
)

// AutoFixPrefix marks journal agents and learning entries written by the auto-fixer.
const AutoFixPrefix = "AutoFix:"

var entryPattern = regexp.MustCompile(`^(\S+) \[(.+?)\] (.+)$`)

// Entry is one parsed journal line.
type Entry struct {
	Time   string
	Agent  string
	Action string
}

// Journal appends "<time> [<agent>] <action>" lines to a file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// New returns a journal writing to path. The file is created on first write.
func New(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Log appends one entry.
func (j *Journal) Log(agent, action string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	action = strings.ReplaceAll(action, "\n", " ")
	line := fmt.Sprintf("%s [%s] %s\n", time.Now().UTC().Format(time.RFC3339Nano), agent, action)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// LogAutoFix records an auto-fix attempt for agent.
func (j *Journal) LogAutoFix(agent, status, detail string) error {
	return j.Log(AutoFixPrefix+agent, fmt.Sprintf("%s: %s", status, detail))
}

// Entries returns every line. A missing journal has no entries.
func (j *Journal) Entries() ([]string, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Tail returns the last n lines.
func (j *Journal) Tail(n int) ([]string, error) {
	if !exists(j.path) {
		return nil, nil
	}
	return script.File(j.path).RejectRegexp(regexp.MustCompile(`^\s*$`)).Last(n).Slice()
}

// Grep returns lines matching re, oldest first.
func (j *Journal) Grep(re *regexp.Regexp) ([]string, error) {
	if !exists(j.path) {
		return nil, nil
	}
	return script.File(j.path).MatchRegexp(re).Slice()
}

// Parse returns structured entries, skipping lines that do not match the journal format.
func (j *Journal) Parse() ([]Entry, error) {
	lines, err := j.Entries()
	if err != nil {
		return nil, err
	}
	return ParseLines(lines), nil
}

// ParseLines parses raw journal lines.
func ParseLines(lines []string) []Entry {
	var out []Entry
	for _, line := range lines {
		m := entryPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Entry{Time: m[1], Agent: m[2], Action: m[3]})
	}
	return out
}

// CountByAgent counts parsed entries per agent.
func (j *Journal) CountByAgent() (map[string]int, error) {
	entries, err := j.Parse()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Agent]++
	}
	return counts, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
