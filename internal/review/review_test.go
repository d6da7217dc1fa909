package review

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philjestin/studiomode/internal/agents"
)

func stub(name string, out agents.Output, err error) agents.Agent {
	return agents.Func{AgentName: name, Fn: func(context.Context, agents.Input) (agents.Output, error) {
		return out, err
	}}
}

func cleanPanel() *Panel {
	return &Panel{
		Inspector: stub(agents.FeatureInspector, agents.Output{"verdict": agents.VerdictPass}, nil),
		Lore:      stub(agents.LoreValidator, agents.Output{"status": agents.LorePass}, nil),
		Refactor:  stub(agents.Refactor, agents.Output{"dead_code": []string{}}, nil),
		Tests:     stub(agents.Tester, agents.Output{"failed": 0}, nil),
		Repo:      os.TempDir(),
		now:       func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestFinal(t *testing.T) {
	assert.Equal(t, Accept, Final(nil))
	assert.Equal(t, NeedsRevision, Final([]Vote{{Verdict: Accept}, {Verdict: NeedsRevision}}))
	assert.Equal(t, Block, Final([]Vote{{Verdict: NeedsRevision}, {Verdict: Block}, {Verdict: Accept}}))
}

func TestPanelAccepts(t *testing.T) {
	out := t.TempDir()
	res, err := cleanPanel().Run(context.Background(), Request{Feature: "jump", OutDir: out})
	require.NoError(t, err)

	assert.Equal(t, Accept, res.Verdict)
	require.Len(t, res.Votes, 4)
	assert.Equal(t, agents.FeatureInspector, res.Votes[0].Agent)
	assert.Equal(t, agents.Tester, res.Votes[3].Agent)

	report, err := os.ReadFile(res.Report)
	require.NoError(t, err)
	text := string(report)
	assert.Contains(t, text, "**Final Verdict:** accept")
	assert.Contains(t, text, "*Time:* 2024-05-01T12:00:00Z")
	assert.Contains(t, text, "*Feature:* jump")
	assert.Contains(t, text, "*Commit:* ")
}

func TestPanelVotes(t *testing.T) {
	p := cleanPanel()
	p.Refactor = stub(agents.Refactor, agents.Output{"dead_code": []string{"x is never used"}}, nil)
	res, err := p.Run(context.Background(), Request{Feature: "jump", OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, NeedsRevision, res.Verdict)
	assert.Equal(t, "dead code", res.Votes[2].Reason)

	p = cleanPanel()
	p.Tests = stub(agents.Tester, agents.Output{"failed": 2}, nil)
	res, err = p.Run(context.Background(), Request{Feature: "jump", OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, Block, res.Verdict)
	assert.Equal(t, "2 failed", res.Votes[3].Reason)

	p = cleanPanel()
	p.Lore = stub(agents.LoreValidator, agents.Output{"status": agents.LoreMismatch}, nil)
	p.Inspector = stub(agents.FeatureInspector, nil, errors.New("no project map"))
	res, err = p.Run(context.Background(), Request{Feature: "jump", OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, Block, res.Verdict)
	assert.Equal(t, NeedsRevision, res.Votes[0].Verdict)
}

func TestPanelSkipsMissingMembers(t *testing.T) {
	p := cleanPanel()
	p.Lore = nil
	p.Refactor = nil
	res, err := p.Run(context.Background(), Request{OutDir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, res.Votes, 2)

	report, _ := os.ReadFile(res.Report)
	assert.True(t, strings.Contains(string(report), "*Feature:* unknown"))
}

func TestPanelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cleanPanel().Run(ctx, Request{Feature: "jump", OutDir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
}
