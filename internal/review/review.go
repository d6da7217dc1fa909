// Package review runs the AI review panel: several agents vote on a finished
// feature and the strictest vote wins.
package review

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/gitutil"
)

// Verdicts, from most to least lenient.
const (
	Accept        = "accept"
	NeedsRevision = "needs_revision"
	Block         = "block"
)

// ReportName is the file the panel writes.
const ReportName = "review_verdict.md"

// Vote is one panel member's verdict.
type Vote struct {
	Agent   string
	Verdict string
	Reason  string
}

// Result is the panel outcome.
type Result struct {
	Verdict string
	Report  string
	Votes   []Vote
}

// Request describes the feature under review.
type Request struct {
	Feature     string
	Description string
	Assets      []string
	OutDir      string
}

// Panel holds the voting agents. Nil members abstain.
type Panel struct {
	Inspector agents.Agent
	Lore      agents.Agent
	Refactor  agents.Agent
	Tests     agents.Agent

	// Repo is where the commit hash is read from.
	Repo string

	now func() time.Time
}

// Final folds votes: any block blocks, else any needs_revision, else accept.
func Final(votes []Vote) string {
	final := Accept
	for _, v := range votes {
		switch v.Verdict {
		case Block:
			return Block
		case NeedsRevision:
			final = NeedsRevision
		}
	}
	return final
}

// Run collects the votes concurrently and writes review_verdict.md.
func (p *Panel) Run(ctx context.Context, req Request) (Result, error) {
	if req.Feature == "" {
		req.Feature = "unknown"
	}
	if err := os.MkdirAll(req.OutDir, 0755); err != nil {
		return Result{}, err
	}

	ballots := []struct {
		agent agents.Agent
		vote  func(context.Context, agents.Agent, Request) Vote
	}{
		{p.Inspector, voteInspector},
		{p.Lore, voteLore},
		{p.Refactor, voteRefactor},
		{p.Tests, voteTests},
	}

	votes := make([]Vote, len(ballots))
	g, gctx := errgroup.WithContext(ctx)
	for i, b := range ballots {
		if b.agent == nil {
			continue
		}
		g.Go(func() error {
			votes[i] = b.vote(gctx, b.agent, req)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	cast := make([]Vote, 0, len(votes))
	for _, v := range votes {
		if v.Agent != "" {
			cast = append(cast, v)
		}
	}

	res := Result{Verdict: Final(cast), Votes: cast}
	report, err := p.write(req, res)
	if err != nil {
		return res, err
	}
	res.Report = report
	return res, nil
}

func (p *Panel) write(req Request, res Result) (string, error) {
	now := time.Now().UTC()
	if p.now != nil {
		now = p.now()
	}

	lines := []string{
		"# AI Review Panel",
		"",
		"| Agent | Verdict | Reason |",
		"|-------|---------|--------|",
	}
	for _, v := range res.Votes {
		lines = append(lines, fmt.Sprintf("| %s | %s | %s |", v.Agent, v.Verdict, v.Reason))
	}
	lines = append(lines,
		"",
		"**Final Verdict:** "+res.Verdict,
		"",
		"*Time:* "+now.Format(time.RFC3339),
		"*Feature:* "+req.Feature,
		"*Commit:* "+gitutil.Head(p.Repo),
	)

	path := filepath.Join(req.OutDir, ReportName)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return "", fmt.Errorf("write review verdict: %w", err)
	}
	return path, nil
}

func voteInspector(ctx context.Context, a agents.Agent, req Request) Vote {
	out, err := a.Run(ctx, agents.Input{"feature": req.Feature, "out_dir": req.OutDir})
	if err != nil {
		return Vote{a.Name(), NeedsRevision, err.Error()}
	}
	verdict, _ := out["verdict"].(string)
	if verdict == agents.VerdictPass {
		return Vote{a.Name(), Accept, ""}
	}
	if verdict == "" {
		verdict = "issues found"
	}
	return Vote{a.Name(), NeedsRevision, verdict}
}

func voteLore(ctx context.Context, a agents.Agent, req Request) Vote {
	out, err := a.Run(ctx, agents.Input{
		"feature":     req.Feature,
		"out_dir":     req.OutDir,
		"description": req.Description,
		"assets":      req.Assets,
	})
	if err != nil {
		return Vote{a.Name(), Block, err.Error()}
	}
	status, _ := out["status"].(string)
	if status == agents.LorePass {
		return Vote{a.Name(), Accept, ""}
	}
	if status == "" {
		status = "lore mismatch"
	}
	return Vote{a.Name(), Block, status}
}

func voteRefactor(ctx context.Context, a agents.Agent, _ Request) Vote {
	out, err := a.Run(ctx, agents.Input{})
	if err != nil {
		return Vote{a.Name(), NeedsRevision, "issues"}
	}
	dead, _ := out["dead_code"].([]string)
	if len(dead) > 0 {
		return Vote{a.Name(), NeedsRevision, "dead code"}
	}
	return Vote{a.Name(), Accept, ""}
}

func voteTests(ctx context.Context, a agents.Agent, _ Request) Vote {
	out, err := a.Run(ctx, agents.Input{})
	if err != nil {
		return Vote{a.Name(), Block, err.Error()}
	}
	if failed, _ := out["failed"].(int); failed > 0 {
		return Vote{a.Name(), Block, fmt.Sprintf("%d failed", failed)}
	}
	return Vote{a.Name(), Accept, ""}
}
