// Package improve applies the SKIP and PRIORITIZE commands of the meta
// insights to the agents list of pipeline_config.yaml.
package improve

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/report"
)

// ReportName is the file Run writes.
const ReportName = "self_improvement.md"

// Commands are the directives found in a meta insights document.
type Commands struct {
	Skip       []string
	Prioritize []string

	// Reasons holds every command line as written.
	Reasons []string
}

// Parse collects lines of the form "SKIP <agent> ..." and
// "PRIORITIZE <agent> ...". Keywords are case-insensitive and list markers
// are ignored.
func Parse(text string) Commands {
	var c Commands
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(sc.Text()), "-*"))
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		agent := strings.TrimRight(fields[1], ":,.;")
		switch strings.ToUpper(fields[0]) {
		case "SKIP":
			c.Skip = appendOnce(c.Skip, agent)
		case "PRIORITIZE":
			c.Prioritize = appendOnce(c.Prioritize, agent)
		default:
			continue
		}
		c.Reasons = append(c.Reasons, line)
	}
	return c
}

func appendOnce(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// Apply removes skipped agents and moves prioritized ones to the front, in
// command order. Agents absent from the list are left alone. It returns the
// new list and a line per change.
func Apply(list []string, c Commands) ([]string, []string) {
	out := slices.Clone(list)
	var changes []string
	for _, a := range c.Skip {
		if i := slices.Index(out, a); i >= 0 {
			out = slices.Delete(out, i, i+1)
			changes = append(changes, "Removed "+a)
		}
	}
	for i := len(c.Prioritize) - 1; i >= 0; i-- {
		a := c.Prioritize[i]
		j := slices.Index(out, a)
		if j < 0 {
			continue
		}
		out = slices.Insert(slices.Delete(out, j, j+1), 0, a)
	}
	for _, a := range c.Prioritize {
		if slices.Contains(out, a) {
			changes = append(changes, "Prioritized "+a)
		}
	}
	return out, changes
}

// Result describes one improvement run.
type Result struct {
	Agents  []string
	Changes []string
	Backup  string
	Report  string
}

// Improver rewrites the pipeline config from meta insights.
type Improver struct {
	PipelineConfig string
	Journal        *journal.Journal
}

// BackupPath is where the previous pipeline config is kept, next to it.
func (im *Improver) BackupPath() string {
	ext := filepath.Ext(im.PipelineConfig)
	return strings.TrimSuffix(im.PipelineConfig, ext) + ".backup" + ext
}

// Run reads metaPath, applies its commands and writes self_improvement.md
// into outDir. An empty agents list stands for the default order. The config
// is backed up and rewritten only when something changed.
func (im *Improver) Run(metaPath, outDir string) (Result, error) {
	var res Result
	data, err := os.ReadFile(metaPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("read meta insights: %w", err)
	}
	cmds := Parse(string(data))

	cfg, err := config.LoadPipeline(im.PipelineConfig)
	if err != nil {
		return res, err
	}
	current := cfg.Agents
	if len(current) == 0 {
		current = agents.DefaultOrder
	}
	res.Agents, res.Changes = Apply(current, cmds)

	if len(res.Changes) > 0 {
		if res.Backup, err = im.backup(); err != nil {
			return res, err
		}
		if err := config.SetAgents(im.PipelineConfig, res.Agents); err != nil {
			return res, fmt.Errorf("rewrite pipeline config: %w", err)
		}
	}

	changes := res.Changes
	if len(changes) == 0 {
		changes = []string{"none"}
	}
	reasons := cmds.Reasons
	if len(reasons) == 0 {
		reasons = []string{"no commands"}
	}

	var b strings.Builder
	b.WriteString("# Self-Improvement Suggestions\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Source: %s\n\n## Applied Changes\n", metaPath)
	for _, c := range changes {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n## Reasons\n")
	for _, r := range reasons {
		b.WriteString("- " + r + "\n")
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, err
	}
	res.Report = filepath.Join(outDir, ReportName)
	if err := os.WriteFile(res.Report, []byte(b.String()), 0644); err != nil {
		return res, fmt.Errorf("write self improvement: %w", err)
	}

	for _, c := range res.Changes {
		im.Journal.Log(report.ImproverAgent, c)
	}
	if len(res.Changes) == 0 {
		im.Journal.Log(report.ImproverAgent, "no changes")
	}
	return res, nil
}

func (im *Improver) backup() (string, error) {
	data, err := os.ReadFile(im.PipelineConfig)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pipeline config: %w", err)
	}
	path := im.BackupPath()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("back up pipeline config: %w", err)
	}
	return path, nil
}
