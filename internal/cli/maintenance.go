package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/agents"
	"github.com/philjestin/studiomode/internal/escalation"
	"github.com/philjestin/studiomode/internal/improve"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/optimizer"
	"github.com/philjestin/studiomode/internal/repair"
	"github.com/philjestin/studiomode/internal/report"
)

var escalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Escalate agents stuck failing on the same input to the team lead",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openState(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		threshold, _ := cmd.Flags().GetInt("threshold")
		if threshold == 0 {
			threshold = s.cfg.EscalationThreshold
		}
		p := s.cfg.Paths
		e := &escalation.Escalator{
			Learning:  s.learning,
			Lead:      agents.NewTeamLead(p.TeamLeadJournal, p.Metrics, index.NewProjectMap(p.ProjectMap)),
			Journal:   s.journal,
			Threshold: threshold,
		}

		path, err := e.Run(ctx, s.cfg.ReportsDir)
		if err != nil {
			return fmt.Errorf("escalation failed: %w", err)
		}
		out := cmd.OutOrStdout()
		if path == "" {
			fmt.Fprintln(out, "✅ No repeated failures")
			return nil
		}
		fmt.Fprintf(out, "🚨 Escalated. Report: %s\n", path)
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Suggest stages that can be skipped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openState(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		traces, err := s.tracer.Load()
		if err != nil {
			return fmt.Errorf("load traces: %w", err)
		}
		log, err := s.learning.Log(ctx)
		if err != nil {
			return fmt.Errorf("load learning log: %w", err)
		}

		sug := optimizer.Suggest(traces, log)
		out := cmd.OutOrStdout()
		if len(sug.Skip) == 0 && len(sug.Warn) == 0 {
			fmt.Fprintln(out, "No optimizations suggested")
			return nil
		}
		if len(sug.Skip) > 0 {
			fmt.Fprintf(out, "Skip: %s\n", strings.Join(sug.Skip, " "))
		}
		if len(sug.Warn) > 0 {
			fmt.Fprintf(out, "⚠️  Fast but varied input: %s\n", strings.Join(sug.Warn, " "))
		}
		if sug.Notes != "" {
			fmt.Fprintln(out, sug.Notes)
		}
		return nil
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair [feature]",
	Short: "Suggest repairs for recent failures",
	Long: `Read recent failures from the journal and the learning log and write
repair_suggestion.md. With --auto-repair the failing agents are also removed
from the agents list of the pipeline config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openState(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		feature := ""
		if len(args) > 0 {
			feature = args[0]
		}
		r := &repair.Repairer{
			Journal:        s.journal,
			Learning:       s.learning,
			PipelineConfig: s.cfg.Paths.PipelineConfig,
		}

		sug, err := r.Suggest(ctx, feature, s.cfg.ReportsDir)
		if err != nil {
			return fmt.Errorf("repair failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🛠  Suggestions: %s\n", sug.Report)
		for _, line := range sug.Suggestions {
			fmt.Fprintln(out, line)
		}

		auto, _ := cmd.Flags().GetBool("auto-repair")
		if !auto || len(sug.Findings) == 0 {
			return nil
		}
		kept, err := r.AutoRepair(sug)
		if err != nil {
			return fmt.Errorf("auto repair failed: %w", err)
		}
		fmt.Fprintf(out, "🔧 Pipeline agents now: %s\n", strings.Join(kept, ", "))
		return nil
	},
}

var improveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Apply SKIP and PRIORITIZE lines from the meta insights to the pipeline config",
	Long: `Read SKIP <agent> and PRIORITIZE <agent> lines from meta_insights.md and
rewrite the agents list of the pipeline config. The previous config is kept as
pipeline_config.backup.yaml and the changes are listed in self_improvement.md.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		meta, _ := cmd.Flags().GetString("meta")
		if meta == "" {
			meta = filepath.Join(cfg.ReportsDir, report.MetaInsightsName)
		}
		im := &improve.Improver{
			PipelineConfig: cfg.Paths.PipelineConfig,
			Journal:        journal.New(cfg.Paths.Journal),
		}
		res, err := im.Run(meta, cfg.ReportsDir)
		if err != nil {
			return fmt.Errorf("improve failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🧬 %s\n", res.Report)
		if len(res.Changes) == 0 {
			fmt.Fprintln(out, "No changes")
			return nil
		}
		for _, c := range res.Changes {
			fmt.Fprintln(out, "- "+c)
		}
		fmt.Fprintf(out, "🔧 Pipeline agents now: %s\n", strings.Join(res.Agents, ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(escalateCmd)
	rootCmd.AddCommand(improveCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(repairCmd)

	escalateCmd.Flags().Int("threshold", 0, "Identical failures tolerated (default from config)")
	improveCmd.Flags().String("meta", "", "Meta insights file (default: reports dir)")
	repairCmd.Flags().Bool("auto-repair", false, "Drop failing agents from the pipeline config")
}
