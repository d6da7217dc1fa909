package report

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/store"
)

// AgentLog is the changelog section of one agent.
type AgentLog struct {
	Agent string
	Lines []string
}

// GroupByAgent groups journal entries by agent in first-seen order.
func GroupByAgent(entries []journal.Entry) []AgentLog {
	var out []AgentLog
	index := map[string]int{}
	for _, e := range entries {
		i, ok := index[e.Agent]
		if !ok {
			i = len(out)
			index[e.Agent] = i
			out = append(out, AgentLog{Agent: e.Agent})
		}
		out[i].Lines = append(out[i].Lines, e.Time+" "+e.Action)
	}
	return out
}

// Changelog renders CHANGELOG.md from journal entries.
func Changelog(entries []journal.Entry) (string, error) {
	return renderMarkdown("changelog.md.tmpl", GroupByAgent(entries))
}

// WriteChangelog renders the journal into path.
func WriteChangelog(j *journal.Journal, path string) (string, error) {
	entries, err := j.Parse()
	if err != nil {
		return "", err
	}
	text, err := Changelog(entries)
	if err != nil {
		return "", err
	}
	return write(path, []byte(text))
}

// CIResults is the CI section of the final summary.
type CIResults struct {
	Tests      string
	Build      string
	Inspection string
	Lore       string
	Review     string
}

// FinalData feeds final_summary.md.
type FinalData struct {
	Entries   []string
	CI        *CIResults
	Artifacts []string
	Changelog string
}

// FinalSummaryEntries is how many journal lines the final summary keeps.
const FinalSummaryEntries = 20

// FinalSummary writes final_summary.md into outDir and returns its text.
func FinalSummary(outDir string, data FinalData) (string, string, error) {
	if len(data.Entries) > FinalSummaryEntries {
		data.Entries = data.Entries[len(data.Entries)-FinalSummaryEntries:]
	}
	text, err := renderMarkdown("final_summary.md.tmpl", data)
	if err != nil {
		return "", "", err
	}
	path, err := write(filepath.Join(outDir, FinalSummaryName), []byte(text))
	return path, text, err
}

// FailureRate is one agent's error share.
type FailureRate struct {
	Agent string
	Fails int
	Total int
	Rate  float64
}

// RepeatedFix counts auto-fix outputs produced more than once.
type RepeatedFix struct {
	Agent string
	Count int
}

// Performance is one agent's mean trace time.
type Performance struct {
	Agent   string
	AvgTime float64
	Calls   int
}

// Insights is the content of meta_insights.md.
type Insights struct {
	Failures    []FailureRate
	AutoFix     []RepeatedFix
	Performance []Performance

	// Commands are SKIP lines for agents that never succeed; improve applies them.
	Commands []string
}

// skipAfter is how many runs an agent must fail in a row before a SKIP is suggested.
const skipAfter = 3

// Analyze derives insights from the learning log and traces.
func Analyze(log map[string][]store.Interaction, traces map[string][]journal.TraceEntry) Insights {
	var in Insights

	agents := make([]string, 0, len(log))
	for a := range log {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	for _, agent := range agents {
		entries := log[agent]
		if base, ok := strings.CutPrefix(agent, journal.AutoFixPrefix); ok {
			seen := map[string]int{}
			for _, e := range entries {
				if e.Output != "" {
					seen[e.Output]++
				}
			}
			repeated := 0
			for _, n := range seen {
				if n > 1 {
					repeated++
				}
			}
			if repeated > 0 {
				in.AutoFix = append(in.AutoFix, RepeatedFix{base, repeated})
			}
			continue
		}

		fails := 0
		for _, e := range entries {
			if e.Result != store.ResultSuccess {
				fails++
			}
		}
		if fails > 0 {
			in.Failures = append(in.Failures, FailureRate{
				Agent: agent,
				Fails: fails,
				Total: len(entries),
				Rate:  float64(fails) / float64(len(entries)),
			})
		}
	}
	slices.SortStableFunc(in.Failures, func(a, b FailureRate) int {
		switch {
		case a.Rate > b.Rate:
			return -1
		case a.Rate < b.Rate:
			return 1
		}
		return 0
	})
	for _, f := range in.Failures {
		if f.Fails == f.Total && f.Total >= skipAfter {
			in.Commands = append(in.Commands, fmt.Sprintf("SKIP %s: failed all %d runs", f.Agent, f.Total))
		}
	}

	names := make([]string, 0, len(traces))
	for a := range traces {
		names = append(names, a)
	}
	sort.Strings(names)
	for _, agent := range names {
		entries := traces[agent]
		if len(entries) == 0 {
			continue
		}
		var total time.Duration
		for _, e := range entries {
			total += e.Duration()
		}
		in.Performance = append(in.Performance, Performance{
			Agent:   agent,
			AvgTime: total.Seconds() / float64(len(entries)),
			Calls:   len(entries),
		})
	}
	return in
}

// MetaInsights writes meta_insights.md into outDir.
func MetaInsights(outDir string, in Insights) (string, error) {
	text, err := renderMarkdown("meta_insights.md.tmpl", in)
	if err != nil {
		return "", err
	}
	return write(filepath.Join(outDir, MetaInsightsName), []byte(text))
}
