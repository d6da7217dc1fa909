package report

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/status"
	"github.com/philjestin/studiomode/internal/store"
)

// AgentStat summarises one agent across the journal, learning log and traces.
type AgentStat struct {
	Agent     string
	Calls     int
	AutoFixes int
	Success   int
	Fail      int
	AvgTime   float64
	Timed     bool
}

// Sources are the inputs of the agent statistics.
type Sources struct {
	Calls    map[string]int
	Learning map[string][]store.Interaction
	Traces   map[string][]journal.TraceEntry
}

// CollectStats merges the sources into one row per agent, sorted by name.
// Auto-fix learning entries count as successful fixes of their base agent.
func CollectStats(src Sources) []AgentStat {
	rows := map[string]*AgentStat{}
	row := func(agent string) *AgentStat {
		if r, ok := rows[agent]; ok {
			return r
		}
		r := &AgentStat{Agent: agent}
		rows[agent] = r
		return r
	}

	for agent, n := range src.Calls {
		row(agent).Calls = n
	}
	for agent, entries := range src.Learning {
		if base, ok := strings.CutPrefix(agent, journal.AutoFixPrefix); ok {
			r := row(base)
			for _, e := range entries {
				if e.Result == store.ResultSuccess {
					r.AutoFixes++
				}
			}
			continue
		}
		r := row(agent)
		for _, e := range entries {
			if e.Result == store.ResultSuccess {
				r.Success++
			} else {
				r.Fail++
			}
		}
	}
	for agent, entries := range src.Traces {
		if len(entries) == 0 {
			continue
		}
		var total time.Duration
		for _, e := range entries {
			total += e.Duration()
		}
		r := row(agent)
		r.AvgTime = total.Seconds() / float64(len(entries))
		r.Timed = true
	}

	out := make([]AgentStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// AgentStats writes agent_stats.html into outDir.
func AgentStats(outDir string, stats []AgentStat, meta Meta) (string, error) {
	return writeHTML(outDir, AgentStatsName, struct {
		Stats []AgentStat
		Meta  Meta
	}{stats, meta})
}

// OverviewFeature is one row of the CI overview.
type OverviewFeature struct {
	Name    string
	Status  string
	Started string
	Ended   string
	Summary string
}

// Overview writes ci_overview.html into outDir from the status document.
func Overview(outDir string, doc status.Document, stats []AgentStat, monitorURL string) (string, error) {
	data := struct {
		Features   []OverviewFeature
		Stats      []AgentStat
		Reports    []string
		Start      string
		End        string
		MonitorURL string
		Generated  string
	}{
		Stats:      stats,
		Reports:    listReports(outDir),
		MonitorURL: monitorURL,
		Generated:  time.Now().UTC().Format(time.RFC3339),
	}

	var start, end time.Time
	for _, name := range doc.Names() {
		fs := doc.Features[name]
		f := OverviewFeature{Name: name, Status: string(fs.Status), Summary: fs.SummaryPath}
		if fs.Started != nil {
			f.Started = fs.Started.Format(time.RFC3339)
			if start.IsZero() || fs.Started.Before(start) {
				start = *fs.Started
			}
		}
		if fs.Ended != nil {
			f.Ended = fs.Ended.Format(time.RFC3339)
			if fs.Ended.After(end) {
				end = *fs.Ended
			}
		}
		data.Features = append(data.Features, f)
	}
	if !start.IsZero() {
		data.Start = start.Format(time.RFC3339)
	}
	if !end.IsZero() {
		data.End = end.Format(time.RFC3339)
	}
	return writeHTML(outDir, OverviewName, data)
}

func listReports(dir string) []string {
	var links []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".html", ".md":
			if rel, err := filepath.Rel(dir, path); err == nil {
				links = append(links, filepath.ToSlash(rel))
			}
		}
		return nil
	})
	return links
}
