package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/store"
)

func results(rs ...string) []store.Interaction {
	out := make([]store.Interaction, len(rs))
	for i, r := range rs {
		out[i] = store.Interaction{Result: r, Hash: r + string(rune('a'+i)), Input: "in", Output: "out"}
	}
	return out
}

const (
	pass = store.ResultSuccess
	fail = store.ResultError
)

func TestScores(t *testing.T) {
	entries := []journal.Entry{
		{Agent: "CoderAgent", Action: "start"},
		{Agent: journal.AutoFixPrefix + "CoderAgent", Action: "success: patch"},
		{Agent: "TeamLead", Action: "escalation CoderAgent 3x"},
		{Agent: ImproverAgent, Action: "Removed RefactorAgent"},
	}
	log := map[string][]store.Interaction{
		"CoderAgent":                        results(pass, fail, pass),
		journal.AutoFixPrefix + "CoderAgent": results(pass),
	}

	scores := Scores(entries, log)
	byAgent := map[string]AgentScore{}
	for _, s := range scores {
		byAgent[s.Agent] = s
	}

	coder := byAgent["CoderAgent"]
	assert.Equal(t, 1, coder.Calls)
	assert.Equal(t, 2, coder.Success)
	assert.Equal(t, 1, coder.Fail)
	assert.Equal(t, 1, coder.AutoFix)
	assert.Equal(t, 1, coder.Escalations)
	require.NotNil(t, coder.SuccessRate)
	assert.InDelta(t, 0.67, *coder.SuccessRate, 0.001)
	assert.Equal(t, "0.67", coder.Rate())
	assert.Equal(t, TrendNone, coder.Trend)

	assert.Equal(t, 1, byAgent["RefactorAgent"].Improved)
	assert.Equal(t, "-", byAgent["RefactorAgent"].Rate())
	assert.Equal(t, 1, byAgent["TeamLead"].Calls)

	var names []string
	for _, s := range scores {
		names = append(names, s.Agent)
	}
	want := []string{"CoderAgent", "RefactorAgent", ImproverAgent, "TeamLead"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreTrend(t *testing.T) {
	tests := []struct {
		name string
		log  []store.Interaction
		want string
	}{
		{"too short", results(pass, pass, pass, pass, pass), TrendNone},
		{"up", results(fail, fail, fail, fail, fail, pass, pass, pass, pass, pass), TrendUp},
		{"down", results(pass, pass, pass, pass, pass, pass, fail, pass, pass, pass), TrendDown},
		{"same", results(pass, fail, pass, pass, pass, pass, pass, pass, fail, pass, pass), TrendSame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trend(tt.log))
		})
	}
}

func TestWriteScores(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "agent_scores.json")
	scores := Scores(nil, map[string][]store.Interaction{"CoderAgent": results(pass)})

	path, err := WriteScores(dir, jsonPath, scores, testMeta)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AgentScoresName), path)

	html, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(html), "CoderAgent")
	assert.Contains(t, string(html), "1.00")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var got map[string]AgentScore
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1, got["CoderAgent"].Success)
}

func TestLearningStats(t *testing.T) {
	log := map[string][]store.Interaction{
		"CoderAgent": {
			{Hash: "h1", Input: "jump", Output: "use Rigidbody", Result: pass},
			{Hash: "h1", Input: "jump", Output: "use Rigidbody", Result: pass},
			{Hash: "h2", Input: "dash", Output: "", Result: fail},
			{Hash: "h3", Input: string(make([]byte, 100)), Output: "x", Result: pass},
		},
		journal.AutoFixPrefix + "CoderAgent": {
			{Output: "diff A", Result: pass},
			{Output: "diff A", Result: pass},
			{Output: "diff B", Result: fail},
		},
	}

	stats := LearningStats(log)
	require.Len(t, stats, 1)
	st := stats[0]
	assert.Equal(t, "CoderAgent", st.Agent)
	assert.Equal(t, 2, st.UniqueSuccess)
	assert.Equal(t, 1, st.AutoFix)
	require.Len(t, st.Examples, 3)
	assert.Equal(t, LearningExample{Input: "jump", Hint: "use Rigidbody"}, st.Examples[0])
	assert.Len(t, st.Examples[2].Input, exampleWidth)

	path, err := LearningReport(t.TempDir(), stats, testMeta)
	require.NoError(t, err)
	html, _ := os.ReadFile(path)
	assert.Contains(t, string(html), "use Rigidbody")
}

func TestSummarizeTraces(t *testing.T) {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(agent string, offset, d time.Duration, st string) journal.TraceEntry {
		return journal.TraceEntry{Agent: agent, StartTime: start.Add(offset), EndTime: start.Add(offset + d), Status: st}
	}
	traces := map[string][]journal.TraceEntry{
		"CoderAgent":  {at("CoderAgent", 0, 4*time.Second, pass), at("CoderAgent", 10*time.Second, 2*time.Second, pass)},
		"TesterAgent": {at("TesterAgent", 5*time.Second, 10*time.Second, pass), at("TesterAgent", 20*time.Second, time.Second, fail)},
		"BuildAgent":  {at("BuildAgent", 30*time.Second, time.Second, pass), {Agent: "BuildAgent", Status: pass}},
	}

	sum := SummarizeTraces(traces)

	want := []TraceStat{
		{Agent: "TesterAgent", Total: 11, Avg: 5.5, Count: 2},
		{Agent: "CoderAgent", Total: 6, Avg: 3, Count: 2},
		{Agent: "BuildAgent", Total: 1, Avg: 1, Count: 1},
	}
	if diff := cmp.Diff(want, sum.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"--skip=build", "--skip=coder"}, sum.Flags)
	require.Len(t, sum.Timeline, 5)
	assert.Equal(t, "CoderAgent", sum.Timeline[0].Agent)
	assert.Equal(t, "BuildAgent", sum.Timeline[4].Agent)

	path, err := TraceReport(t.TempDir(), sum, testMeta)
	require.NoError(t, err)
	html, _ := os.ReadFile(path)
	assert.Contains(t, string(html), "--skip=coder")
}

func TestMonitor(t *testing.T) {
	src := MonitorSources{
		Journal: []journal.Entry{
			{Agent: "CoderAgent", Action: "start"},
			{Agent: "CoderAgent", Action: "start"},
			{Agent: "TesterAgent", Action: "error: 2 failing"},
			{Agent: journal.AutoFixPrefix + "TesterAgent", Action: "noop: no patch"},
			{Agent: "BuildAgent", Action: "build ok"},
		},
		Learning: map[string][]store.Interaction{
			"CoderAgent":                         results(pass, pass, pass, pass, pass),
			"TesterAgent":                        results(pass, fail),
			journal.AutoFixPrefix + "CoderAgent": results(pass),
		},
		Traces: map[string][]journal.TraceEntry{
			"CoderAgent": {trace("CoderAgent", 2*time.Second), trace("CoderAgent", 4*time.Second)},
		},
	}

	rows := Monitor(src)
	want := []MonitorRow{
		{Agent: "BuildAgent", Success: 0, Problems: "low success rate"},
		{Agent: "CoderAgent", Success: 100, AvgTime: 3, Timed: true, AutoFix: 50, Problems: "frequent reruns"},
		{Agent: "TesterAgent", Success: 50, Problems: "low success rate, fails after CoderAgent"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	path, err := SelfMonitor(t.TempDir(), rows)
	require.NoError(t, err)
	text, _ := os.ReadFile(path)
	assert.Contains(t, string(text), "| TesterAgent | 50.0 | - | 0.0 | low success rate, fails after CoderAgent |")
}

func TestAnalyzeSuggestsSkipForAlwaysFailing(t *testing.T) {
	in := Analyze(map[string][]store.Interaction{
		"RefactorAgent": results(fail, fail, fail),
		"TesterAgent":   results(fail, fail),
		"BuildAgent":    results(fail, pass, fail),
	}, nil)
	assert.Equal(t, []string{"SKIP RefactorAgent: failed all 3 runs"}, in.Commands)

	path, err := MetaInsights(t.TempDir(), in)
	require.NoError(t, err)
	text, _ := os.ReadFile(path)
	assert.Contains(t, string(text), "## Commands\nSKIP RefactorAgent: failed all 3 runs")
}
