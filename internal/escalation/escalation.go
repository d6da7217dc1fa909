// Package escalation detects agents stuck failing on the same input and hands
// them to the team lead.
package escalation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/store"
)

// DefaultThreshold is the number of identical failures tolerated before escalating.
const DefaultThreshold = 3

// Recommendation is returned once the team lead has been told.
const Recommendation = "TeamLead notified. Investigate failing agents."

// ReportName is the file Report writes.
const ReportName = "autofailure_report.md"

// Failure is an agent that kept failing on one input.
type Failure struct {
	Agent     string `json:"agent"`
	Stage     string `json:"stage"`
	Count     int    `json:"count"`
	Exception string `json:"exception"`
}

// Detect walks each agent's log from the newest entry back while entries are errors
// on the newest input hash. Agents whose streak exceeds threshold are returned.
// Auto-fix entries are ignored.
func Detect(log map[string][]store.Interaction, threshold int) []Failure {
	var failures []Failure
	for agent, entries := range log {
		if strings.HasPrefix(agent, journal.AutoFixPrefix) {
			continue
		}

		var hash, exception string
		count := 0
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.Result != store.ResultError {
				break
			}
			if count == 0 {
				hash = e.Hash
			}
			if e.Hash != hash {
				break
			}
			count++
			exception = e.Output
		}

		if count > threshold {
			failures = append(failures, Failure{
				Agent:     agent,
				Stage:     agents.StageName(agent),
				Count:     count,
				Exception: exception,
			})
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Agent < failures[j].Agent })
	return failures
}

// Escalator runs detection and notifies the team lead.
type Escalator struct {
	Learning  *learning.Recorder
	Lead      *agents.TeamLeadAgent
	Journal   *journal.Journal
	Threshold int
}

// Trigger logs the failures with the team lead and returns the recommendation.
// No failures yields an empty string.
func (e *Escalator) Trigger(failures []Failure) string {
	if len(failures) == 0 {
		return ""
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s %dx", f.Agent, f.Count))
	}
	summary := strings.Join(parts, "; ")

	if e.Lead != nil {
		e.Lead.Log("Auto escalation triggered: " + summary)
	}
	if e.Journal != nil {
		e.Journal.Log("TeamLead", "escalation "+summary)
	}
	return Recommendation
}

// Run detects failures and writes the report. It returns "" when nothing was found.
func (e *Escalator) Run(ctx context.Context, outDir string) (string, error) {
	log, err := e.Learning.Log(ctx)
	if err != nil {
		return "", fmt.Errorf("load learning log: %w", err)
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	failures := Detect(log, threshold)
	if len(failures) == 0 {
		return "", nil
	}
	return Report(failures, e.Trigger(failures), outDir)
}

var reportTemplate = template.Must(template.New("autofailure").Parse(`# Auto Failure Report

| Agent | Stage | Failures |
|-------|-------|----------|
{{- range .Failures}}
| {{.Agent}} | {{.Stage}} | {{.Count}} |
{{- end}}
{{range .Failures}}
## {{.Agent}}

` + "```" + `
{{.Exception}}
` + "```" + `
{{end}}
## Recommendations

{{.Recommendations}}
`))

// Report writes autofailure_report.md into outDir and returns its path.
func Report(failures []Failure, recommendations, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, ReportName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data := struct {
		Failures        []Failure
		Recommendations string
	}{failures, recommendations}
	if err := reportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("render escalation report: %w", err)
	}
	return path, nil
}
