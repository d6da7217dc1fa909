package report

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/optimizer"
	"github.com/philjestin/studiomode/internal/store"
)

// Trend of an agent's success rate: the last five interactions against the five before.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendSame = "same"
	TrendNone = "n/a"
)

// ImproverAgent is the journal name of the pipeline config improver.
const ImproverAgent = "SelfImproverAgent"

const (
	trendWindow     = 5
	exampleCount    = 3
	exampleWidth    = 80
	lowSuccessRate  = 0.8
	highRerunRate   = 0.1
	teamLeadJournal = "TeamLeadAgent"
)

var agentName = regexp.MustCompile(`[A-Za-z]+Agent`)

// AgentScore rates one agent over the journal and the learning log.
type AgentScore struct {
	Agent       string   `json:"agent"`
	Calls       int      `json:"calls"`
	Success     int      `json:"success"`
	Fail        int      `json:"fail"`
	AutoFix     int      `json:"autofix"`
	Escalations int      `json:"escalations"`
	Improved    int      `json:"self_improve"`
	SuccessRate *float64 `json:"success_rate"`
	Trend       string   `json:"trend"`
}

// Rate formats the success rate, or "-" when the agent has no learning entries.
func (s AgentScore) Rate() string {
	if s.SuccessRate == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *s.SuccessRate)
}

// Scores rates every agent seen in the journal or the learning log, sorted by name.
func Scores(entries []journal.Entry, log map[string][]store.Interaction) []AgentScore {
	rows := map[string]*AgentScore{}
	row := func(agent string) *AgentScore {
		if r, ok := rows[agent]; ok {
			return r
		}
		r := &AgentScore{Agent: agent, Trend: TrendNone}
		rows[agent] = r
		return r
	}

	for _, e := range entries {
		if base, ok := strings.CutPrefix(e.Agent, journal.AutoFixPrefix); ok {
			row(base)
			continue
		}
		row(e.Agent).Calls++
		switch {
		case e.Agent == ImproverAgent:
			for _, m := range agentName.FindAllString(e.Action, -1) {
				if m != ImproverAgent {
					row(m).Improved++
				}
			}
		case strings.Contains(e.Action, "escalation"):
			for _, m := range agentName.FindAllString(e.Action, -1) {
				if m != teamLeadJournal {
					row(m).Escalations++
				}
			}
		}
	}

	for agent, list := range log {
		if base, ok := strings.CutPrefix(agent, journal.AutoFixPrefix); ok {
			row(base).AutoFix = len(list)
			continue
		}
		r := row(agent)
		for _, e := range list {
			if e.Result == store.ResultSuccess {
				r.Success++
			} else {
				r.Fail++
			}
		}
		if total := r.Success + r.Fail; total > 0 {
			rate := math.Round(float64(r.Success)/float64(total)*100) / 100
			r.SuccessRate = &rate
		}
		r.Trend = trend(list)
	}

	out := make([]AgentScore, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

func trend(entries []store.Interaction) string {
	n := len(entries)
	if n <= trendWindow {
		return TrendNone
	}
	recent := successRate(entries[n-trendWindow:])
	prev := successRate(entries[max(0, n-2*trendWindow) : n-trendWindow])
	switch {
	case recent > prev:
		return TrendUp
	case recent < prev:
		return TrendDown
	}
	return TrendSame
}

func successRate(entries []store.Interaction) float64 {
	if len(entries) == 0 {
		return 0
	}
	ok := 0
	for _, e := range entries {
		if e.Result == store.ResultSuccess {
			ok++
		}
	}
	return float64(ok) / float64(len(entries))
}

// WriteScores writes the scores as JSON to jsonPath, keyed by agent, and
// agent_scores.html into outDir.
func WriteScores(outDir, jsonPath string, scores []AgentScore, meta Meta) (string, error) {
	byAgent := make(map[string]AgentScore, len(scores))
	for _, s := range scores {
		byAgent[s.Agent] = s
	}
	data, err := json.MarshalIndent(byAgent, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode scores: %w", err)
	}
	if _, err := write(jsonPath, data); err != nil {
		return "", err
	}
	return writeHTML(outDir, AgentScoresName, struct {
		Scores []AgentScore
		Meta   Meta
	}{scores, meta})
}

// LearningExample is one remembered success.
type LearningExample struct {
	Input string
	Hint  string
}

// LearningStat summarises what an agent has learned.
type LearningStat struct {
	Agent         string
	UniqueSuccess int
	Examples      []LearningExample
	AutoFix       int
}

// LearningStats counts distinct successful inputs per agent and the distinct
// successful auto-fix patches applied for it.
func LearningStats(log map[string][]store.Interaction) []LearningStat {
	var agents []string
	for a := range log {
		if !strings.HasPrefix(a, journal.AutoFixPrefix) {
			agents = append(agents, a)
		}
	}
	sort.Strings(agents)

	stats := make([]LearningStat, 0, len(agents))
	for _, agent := range agents {
		st := LearningStat{Agent: agent}
		hashes := map[string]bool{}
		for _, e := range log[agent] {
			if e.Result != store.ResultSuccess {
				continue
			}
			hashes[e.Hash] = true
			if len(st.Examples) < exampleCount {
				st.Examples = append(st.Examples, LearningExample{
					Input: clip(e.Input, exampleWidth),
					Hint:  clip(e.Output, exampleWidth),
				})
			}
		}
		st.UniqueSuccess = len(hashes)

		patterns := map[string]bool{}
		for _, e := range log[journal.AutoFixPrefix+agent] {
			if e.Result == store.ResultSuccess && e.Output != "" {
				patterns[e.Output] = true
			}
		}
		st.AutoFix = len(patterns)
		stats = append(stats, st)
	}
	return stats
}

// LearningReport writes learning_report.html into outDir.
func LearningReport(outDir string, stats []LearningStat, meta Meta) (string, error) {
	return writeHTML(outDir, LearningReportName, struct {
		Stats []LearningStat
		Meta  Meta
	}{stats, meta})
}

// TraceStat is one agent's total and mean trace time in seconds.
type TraceStat struct {
	Agent string
	Total float64
	Avg   float64
	Count int
}

// TimelineItem is one traced invocation.
type TimelineItem struct {
	Agent    string
	Start    time.Time
	Duration float64
	Status   string
}

// TraceSummary is the content of trace_report.html.
type TraceSummary struct {
	Stats    []TraceStat
	Timeline []TimelineItem
	Flags    []string
}

// SummarizeTraces totals trace time per agent, slowest first, and recommends a
// skip flag for every agent that ran more than once without an error.
// Entries missing either timestamp are ignored.
func SummarizeTraces(traces map[string][]journal.TraceEntry) TraceSummary {
	var sum TraceSummary
	for agent, entries := range traces {
		st := TraceStat{Agent: agent}
		clean := len(entries) > 1
		for _, e := range entries {
			if e.Status != store.ResultSuccess {
				clean = false
			}
			if e.StartTime.IsZero() || e.EndTime.IsZero() {
				continue
			}
			d := e.Duration().Seconds()
			st.Total += d
			st.Count++
			sum.Timeline = append(sum.Timeline, TimelineItem{
				Agent:    agent,
				Start:    e.StartTime,
				Duration: round2(d),
				Status:   e.Status,
			})
		}
		if st.Count > 0 {
			st.Avg = round2(st.Total / float64(st.Count))
			st.Total = round2(st.Total)
			sum.Stats = append(sum.Stats, st)
		}
		if clean {
			sum.Flags = append(sum.Flags, optimizer.Flag(agent))
		}
	}

	sort.Slice(sum.Stats, func(i, j int) bool {
		if sum.Stats[i].Total != sum.Stats[j].Total {
			return sum.Stats[i].Total > sum.Stats[j].Total
		}
		return sum.Stats[i].Agent < sum.Stats[j].Agent
	})
	sort.SliceStable(sum.Timeline, func(i, j int) bool { return sum.Timeline[i].Start.Before(sum.Timeline[j].Start) })
	sort.Strings(sum.Flags)
	return sum
}

// TraceReport writes trace_report.html into outDir.
func TraceReport(outDir string, sum TraceSummary, meta Meta) (string, error) {
	return writeHTML(outDir, TraceReportName, struct {
		TraceSummary
		Meta Meta
	}{sum, meta})
}

// MonitorRow is one agent's health in the self-monitor report.
type MonitorRow struct {
	Agent    string
	Success  float64
	AvgTime  float64
	Timed    bool
	AutoFix  float64
	Problems string
}

// MonitorSources are the inputs of the self-monitor report.
type MonitorSources struct {
	Journal  []journal.Entry
	Learning map[string][]store.Interaction
	Traces   map[string][]journal.TraceEntry
}

// Monitor flags agents with a low success rate, frequent back-to-back reruns
// or errors that tend to follow another agent.
func Monitor(src MonitorSources) []MonitorRow {
	calls := map[string]int{}
	reruns := map[string]int{}
	after := map[string]map[string]int{}
	prev := ""
	for _, e := range src.Journal {
		if strings.HasPrefix(e.Agent, journal.AutoFixPrefix) {
			continue
		}
		calls[e.Agent]++
		if prev == e.Agent {
			reruns[e.Agent]++
		}
		if prev != "" && strings.Contains(strings.ToLower(e.Action), "error") {
			if after[e.Agent] == nil {
				after[e.Agent] = map[string]int{}
			}
			after[e.Agent][prev]++
		}
		prev = e.Agent
	}

	success, fail, autofix := map[string]int{}, map[string]int{}, map[string]int{}
	for agent, list := range src.Learning {
		if base, ok := strings.CutPrefix(agent, journal.AutoFixPrefix); ok {
			autofix[base] = len(list)
			continue
		}
		for _, e := range list {
			if e.Result == store.ResultSuccess {
				success[agent]++
			} else {
				fail[agent]++
			}
		}
	}

	agents := map[string]bool{}
	for _, m := range []map[string]int{calls, success, fail, autofix} {
		for a := range m {
			agents[a] = true
		}
	}
	for a, list := range src.Traces {
		if len(list) > 0 {
			agents[a] = true
		}
	}
	names := make([]string, 0, len(agents))
	for a := range agents {
		names = append(names, a)
	}
	sort.Strings(names)

	rows := make([]MonitorRow, 0, len(names))
	for _, agent := range names {
		n := calls[agent]
		total := success[agent] + fail[agent]
		if total == 0 {
			total = n
		}
		rate := 0.0
		if total > 0 {
			rate = float64(success[agent]) / float64(total)
		}

		r := MonitorRow{Agent: agent, Success: math.Round(rate*1000) / 10}
		if n > 0 {
			r.AutoFix = math.Round(float64(autofix[agent])/float64(n)*1000) / 10
		}
		if list := src.Traces[agent]; len(list) > 0 {
			var d time.Duration
			for _, e := range list {
				d += e.Duration()
			}
			r.AvgTime = round2(d.Seconds() / float64(len(list)))
			r.Timed = true
		}

		var problems []string
		if rate < lowSuccessRate {
			problems = append(problems, "low success rate")
		}
		if n > 0 && float64(reruns[agent])/float64(n) > highRerunRate {
			problems = append(problems, "frequent reruns")
		}
		if culprit := worst(after[agent]); culprit != "" {
			problems = append(problems, "fails after "+culprit)
		}
		r.Problems = strings.Join(problems, ", ")
		rows = append(rows, r)
	}
	return rows
}

// worst returns the key with the highest count, lowest name on ties.
func worst(counts map[string]int) string {
	best, n := "", 0
	for k, v := range counts {
		if v > n || (v == n && k < best) {
			best, n = k, v
		}
	}
	return best
}

// SelfMonitor writes self_monitor_report.md into outDir.
func SelfMonitor(outDir string, rows []MonitorRow) (string, error) {
	text, err := renderMarkdown("self_monitor_report.md.tmpl", struct {
		Rows      []MonitorRow
		Generated string
	}{rows, time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return "", err
	}
	return write(filepath.Join(outDir, SelfMonitorName), []byte(text))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
