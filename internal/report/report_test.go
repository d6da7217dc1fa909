package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/status"
	"github.com/philjestin/studiomode/internal/store"
)

var testMeta = Meta{Date: "2024-05-01T00:00:00Z", Commit: "abc123", User: "ci"}

func trace(agent string, d time.Duration) journal.TraceEntry {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return journal.TraceEntry{Agent: agent, StartTime: start, EndTime: start.Add(d)}
}

func TestChangelog(t *testing.T) {
	entries := []journal.Entry{
		{Time: "t1", Agent: "CoderAgent", Action: "patch applied"},
		{Time: "t2", Agent: "BuildAgent", Action: "build ok"},
		{Time: "t3", Agent: "CoderAgent", Action: "tests generated"},
	}
	text, err := Changelog(entries)
	require.NoError(t, err)

	want := "# Changelog\n\n## CoderAgent\n- t1 patch applied\n- t3 tests generated\n\n## BuildAgent\n- t2 build ok\n"
	assert.Equal(t, want, text)
}

func TestWriteChangelog(t *testing.T) {
	dir := t.TempDir()
	j := journal.New(filepath.Join(dir, "agent_journal.log"))
	j.Log("CoderAgent", "patch applied")

	path, err := WriteChangelog(j, filepath.Join(dir, ChangelogName))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## CoderAgent")
	assert.Contains(t, string(data), "patch applied")
}

func TestFinalSummary(t *testing.T) {
	var entries []string
	for i := 0; i < 25; i++ {
		entries = append(entries, "entry-"+string(rune('a'+i)))
	}
	dir := t.TempDir()
	path, text, err := FinalSummary(dir, FinalData{
		Entries:   entries,
		CI:        &CIResults{Tests: "success", Build: "error", Inspection: "Pass", Lore: "LorePass", Review: "accept"},
		Artifacts: []string{"http://s3/bucket/game.zip"},
		Changelog: "/work/CHANGELOG.md",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FinalSummaryName), path)

	assert.True(t, strings.HasPrefix(text, "# Final Summary\n\n## Agent log\n- entry-f\n"))
	assert.NotContains(t, text, "entry-e\n")
	assert.Contains(t, text, "- Build: error")
	assert.Contains(t, text, "## Artifacts\n- http://s3/bucket/game.zip")
	assert.True(t, strings.HasSuffix(text, "CHANGELOG: /work/CHANGELOG.md\n"))
}

func TestFinalSummaryWithoutCI(t *testing.T) {
	_, text, err := FinalSummary(t.TempDir(), FinalData{Changelog: "CHANGELOG.md"})
	require.NoError(t, err)
	assert.NotContains(t, text, "## CI Results")
	assert.NotContains(t, text, "## Artifacts")
}

func TestCollectStats(t *testing.T) {
	stats := CollectStats(Sources{
		Calls: map[string]int{"CoderAgent": 4, "Learning": 2},
		Learning: map[string][]store.Interaction{
			"CoderAgent":         {{Result: store.ResultSuccess}, {Result: store.ResultError}, {Result: store.ResultSuccess}},
			"AutoFix:CoderAgent": {{Result: store.ResultSuccess}, {Result: store.ResultError}},
		},
		Traces: map[string][]journal.TraceEntry{
			"CoderAgent": {trace("CoderAgent", 2*time.Second), trace("CoderAgent", 4*time.Second)},
		},
	})

	want := []AgentStat{
		{Agent: "CoderAgent", Calls: 4, AutoFixes: 1, Success: 2, Fail: 1, AvgTime: 3, Timed: true},
		{Agent: "Learning", Calls: 2},
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("CollectStats mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyze(t *testing.T) {
	in := Analyze(map[string][]store.Interaction{
		"TesterAgent":        {{Result: store.ResultError}, {Result: store.ResultSuccess}},
		"BuildAgent":         {{Result: store.ResultError}},
		"CoderAgent":         {{Result: store.ResultSuccess}},
		"AutoFix:CoderAgent": {{Output: "same"}, {Output: "same"}, {Output: "other"}},
	}, map[string][]journal.TraceEntry{
		"TesterAgent": {trace("TesterAgent", time.Second)},
	})

	want := Insights{
		Failures: []FailureRate{
			{Agent: "BuildAgent", Fails: 1, Total: 1, Rate: 1},
			{Agent: "TesterAgent", Fails: 1, Total: 2, Rate: 0.5},
		},
		AutoFix:     []RepeatedFix{{Agent: "CoderAgent", Count: 1}},
		Performance: []Performance{{Agent: "TesterAgent", AvgTime: 1, Calls: 1}},
	}
	if diff := cmp.Diff(want, in); diff != "" {
		t.Errorf("Analyze mismatch (-want +got):\n%s", diff)
	}

	path, err := MetaInsights(t.TempDir(), in)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "| BuildAgent | 1 | 1 | 100% |")
	assert.Contains(t, string(data), "- CoderAgent: 1 repeated fix outputs")
}

func TestSummaryHTML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, AssetsReportName), []byte("<html></html>"), 0644)

	path, err := Summary(dir, SummaryData{
		Feature:   "jump",
		Artifacts: []string{"http://s3/b/game.zip"},
		Results:   map[string]string{"TesterAgent": "success", "BuildAgent": "<error>"},
		Changelog: "# Changelog",
		Meta:      testMeta,
	})
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	html := string(data)

	assert.Contains(t, html, `<a href="http://s3/b/game.zip">`)
	assert.Contains(t, html, AssetsReportName)
	assert.Contains(t, html, "<td>BuildAgent</td><td>&lt;error&gt;</td>")
	assert.Less(t, strings.Index(html, "BuildAgent"), strings.Index(html, "TesterAgent"))
	assert.Contains(t, html, "Commit: abc123")
}

func TestMultiFeature(t *testing.T) {
	path, err := MultiFeature(t.TempDir(), []FeatureResult{
		{Name: "jump", Status: FeatureSuccess, Time: 1.5, Summary: "jump/summary.html"},
		{Name: "dash", Status: FeatureError, Time: 0.25, Summary: "dash/summary.html"},
	}, 1750*time.Millisecond)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "2 features, 1 succeeded, 1 failed in 1.75s.")
	assert.Contains(t, string(data), `<a href="dash/summary.html">`)
}

func TestOverview(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "jump"), 0755)
	os.WriteFile(filepath.Join(dir, "jump", SummaryName), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "game.zip"), []byte("x"), 0644)

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	doc := status.Document{Features: map[string]*status.FeatureStatus{
		"jump": {Status: status.StatePassed, Started: &start, Ended: &end, SummaryPath: "jump/summary.html"},
		"dash": {Status: status.StateQueued},
	}}

	path, err := Overview(dir, doc, []AgentStat{{Agent: "CoderAgent", Calls: 1}}, "http://localhost:8002/ci-status")
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	html := string(data)

	assert.Contains(t, html, "Pipeline: 2024-05-01T10:00:00Z to 2024-05-01T10:01:00Z")
	assert.Contains(t, html, "<td>CoderAgent</td>")
	assert.Contains(t, html, `<a href="jump/summary.html">`)
	assert.NotContains(t, html, "game.zip")
	assert.Less(t, strings.Index(html, "<td>dash</td>"), strings.Index(html, "<td>jump</td>"))
}

func TestAgentStatsHTML(t *testing.T) {
	path, err := AgentStats(t.TempDir(), []AgentStat{
		{Agent: "CoderAgent", Calls: 2, AvgTime: 1.234, Timed: true},
		{Agent: "Learning", Calls: 1},
	}, testMeta)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Contains(t, string(data), "<td>1.23</td>")
	assert.Contains(t, string(data), "<td>-</td>")
}

func TestRender(t *testing.T) {
	out, err := Render("# Title\n\nsome *text*", 40)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}
