// Package pipeline drives features through the agent stages and the CI tail:
// inspection, review panel, build, publish, asset QC, reports and notifications.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/autofix"
	"github.com/philjestin/studiomode/internal/backup"
	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/escalation"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/learning"
	"github.com/philjestin/studiomode/internal/llm"
	"github.com/philjestin/studiomode/internal/memory"
	"github.com/philjestin/studiomode/internal/notify"
	"github.com/philjestin/studiomode/internal/planner"
	"github.com/philjestin/studiomode/internal/retry"
	"github.com/philjestin/studiomode/internal/rollback"
	"github.com/philjestin/studiomode/internal/status"
	"github.com/philjestin/studiomode/internal/store"
	"github.com/philjestin/studiomode/internal/store/sqlite"
	"github.com/philjestin/studiomode/internal/usage"
)

// PublishFunc uploads the artifacts in dir.
type PublishFunc func(ctx context.Context, dir string) ([]string, error)

// Runner owns the services a pipeline run touches.
type Runner struct {
	Config *config.Config

	Registry  *agents.Registry
	Planner   *planner.Planner
	Status    *status.Tracker
	Backups   *backup.Manager
	Index     *index.FeatureIndex
	Rollback  *rollback.Manager
	Fixer     *autofix.Fixer
	Escalator *escalation.Escalator
	Lead      *agents.TeamLeadAgent
	Learning  *learning.Recorder
	Journal   *journal.Journal
	Tracer    *journal.Tracer
	Runs      store.RunHistory
	Notifier  *notify.Notifier
	Usage     *usage.Tracker

	// Publish uploads artifacts. Nil uses S3 from Config.
	Publish PublishFunc

	// Fallback is applied to every stage.
	Fallback retry.Fallback

	// SkipOnFail lists stages whose final failure is recorded as skipped.
	SkipOnFail map[string]bool

	closers []func() error
}

// Open wires every service from cfg. Close releases the store.
func Open(ctx context.Context, cfg *config.Config) (*Runner, error) {
	p := cfg.Paths

	db, err := sqlite.OpenMigrated(ctx, p.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	j := journal.New(p.Journal)
	tracer := journal.NewTracer(p.Trace)
	mem := memory.NewStore(p.Memory, j)
	mem.Enable()
	rec := learning.NewRecorder(db, j)
	idx := index.NewFeatureIndex(p.Index)
	pm := index.NewProjectMap(p.ProjectMap)

	tokens := usage.NewTracker()
	client := llm.New(cfg.LLM.BaseURL)
	client.Model = cfg.LLM.Model
	client.CoderModel = cfg.LLM.CoderModel
	client.APIKey = cfg.LLM.APIKey
	client.Timeout = cfg.LLM.Timeout
	client.Usage = tokens

	registry := agents.Default(agents.Deps{
		Config:     cfg,
		LLM:        client,
		Journal:    j,
		Tracer:     tracer,
		Memory:     mem,
		Learning:   rec,
		Index:      idx,
		ProjectMap: pm,
	})

	plan, err := planner.New(mem, pm)
	if err != nil {
		db.Close()
		return nil, err
	}

	backups := backup.NewManager(cfg.Backup.Root, cfg.Backup.Keep)
	lead := agents.NewTeamLead(p.TeamLeadJournal, p.Metrics, pm)

	r := &Runner{
		Config:   cfg,
		Registry: registry,
		Planner:  plan,
		Status:   status.NewTracker(p.Status),
		Backups:  backups,
		Index:    idx,
		Rollback: &rollback.Manager{
			Backups:     backups,
			Workspace:   cfg.ProjectPath,
			ScriptsRoot: cfg.ScriptsRoot(),
			Journal:     j,
		},
		Fixer: &autofix.Fixer{
			Registry:    registry,
			ScriptsRoot: cfg.ScriptsRoot(),
			PatchDir:    p.Patches,
			Learning:    rec,
			Journal:     j,
		},
		Escalator: &escalation.Escalator{
			Learning:  rec,
			Lead:      lead,
			Journal:   j,
			Threshold: cfg.EscalationThreshold,
		},
		Lead:       lead,
		Learning:   rec,
		Journal:    j,
		Tracer:     tracer,
		Runs:       db,
		Notifier:   notify.New(cfg.Notify, j),
		Usage:      tokens,
		Fallback:   retry.Fallback{Retries: cfg.Retry.Attempts, Delay: cfg.Retry.Delay},
		SkipOnFail: map[string]bool{agents.Review: true},
		closers:    []func() error{db.Close},
	}
	return r, nil
}

// Close releases the store.
func (r *Runner) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	r.closers = nil
	return first
}

// printStep prints a formatted step header.
func printStep(current, total int, description string) {
	fmt.Println()
	fmt.Printf("━━━ Step %d/%d: %s ━━━\n", current, total, description)
}

// truncate shortens a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func seconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}
