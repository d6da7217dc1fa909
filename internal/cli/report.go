package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/status"
)

// reportCmd regenerates reports from the workspace state.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate or show pipeline reports",
}

var reportChangelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Rebuild CHANGELOG.md from the agent journal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		path, err := report.WriteChangelog(s.journal, s.cfg.Paths.Changelog)
		if err != nil {
			return fmt.Errorf("changelog failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📝 %s\n", path)
		return nil
	},
}

var reportStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Write agent_stats.html",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := collectStats(cmd.Context(), s)
		if err != nil {
			return err
		}
		path, err := report.AgentStats(s.cfg.ReportsDir, stats, report.NewMeta(s.cfg.ProjectPath))
		if err != nil {
			return fmt.Errorf("agent stats failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📊 %s\n", path)
		return nil
	},
}

var reportOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Write ci_overview.html from the pipeline status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := collectStats(cmd.Context(), s)
		if err != nil {
			return err
		}
		monitor := fmt.Sprintf("http://localhost:%d/ci-status", s.cfg.Server.MonitorPort)
		path, err := report.Overview(s.cfg.ReportsDir, status.Load(s.cfg.Paths.Status), stats, monitor)
		if err != nil {
			return fmt.Errorf("overview failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🗂  %s\n", path)
		return nil
	},
}

var reportMetaCmd = &cobra.Command{
	Use:   "meta",
	Short: "Write meta_insights.md from the learning log and traces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		log, err := s.learning.Log(cmd.Context())
		if err != nil {
			return fmt.Errorf("load learning log: %w", err)
		}
		traces, err := s.tracer.Load()
		if err != nil {
			return fmt.Errorf("load traces: %w", err)
		}
		path, err := report.MetaInsights(s.cfg.ReportsDir, report.Analyze(log, traces))
		if err != nil {
			return fmt.Errorf("meta insights failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🧠 %s\n", path)
		return nil
	},
}

var reportScoresCmd = &cobra.Command{
	Use:   "scores",
	Short: "Write agent_scores.json and agent_scores.html",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.journal.Parse()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		log, err := s.learning.Log(cmd.Context())
		if err != nil {
			return fmt.Errorf("load learning log: %w", err)
		}
		scores := report.Scores(entries, log)
		path, err := report.WriteScores(s.cfg.ReportsDir, s.cfg.Paths.Scores, scores, report.NewMeta(s.cfg.ProjectPath))
		if err != nil {
			return fmt.Errorf("agent scores failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🏅 %s\n", path)
		return nil
	},
}

var reportLearningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Write learning_report.html from the learning log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		log, err := s.learning.Log(cmd.Context())
		if err != nil {
			return fmt.Errorf("load learning log: %w", err)
		}
		path, err := report.LearningReport(s.cfg.ReportsDir, report.LearningStats(log), report.NewMeta(s.cfg.ProjectPath))
		if err != nil {
			return fmt.Errorf("learning report failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📚 %s\n", path)
		return nil
	},
}

var reportTracesCmd = &cobra.Command{
	Use:   "traces",
	Short: "Write trace_report.html with timings and recommended skip flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		traces, err := s.tracer.Load()
		if err != nil {
			return fmt.Errorf("load traces: %w", err)
		}
		sum := report.SummarizeTraces(traces)
		path, err := report.TraceReport(s.cfg.ReportsDir, sum, report.NewMeta(s.cfg.ProjectPath))
		if err != nil {
			return fmt.Errorf("trace report failed: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "⏱  %s\n", path)
		if len(sum.Flags) > 0 {
			fmt.Fprintf(out, "Recommended: %s\n", strings.Join(sum.Flags, " "))
		}
		return nil
	},
}

var reportMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Write self_monitor_report.md flagging unhealthy agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := s.journal.Parse()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		log, err := s.learning.Log(cmd.Context())
		if err != nil {
			return fmt.Errorf("load learning log: %w", err)
		}
		traces, err := s.tracer.Load()
		if err != nil {
			return fmt.Errorf("load traces: %w", err)
		}
		path, err := report.SelfMonitor(s.cfg.ReportsDir, report.Monitor(report.MonitorSources{
			Journal:  entries,
			Learning: log,
			Traces:   traces,
		}))
		if err != nil {
			return fmt.Errorf("self monitor failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🩺 %s\n", path)
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Render a markdown report in the terminal",
	Long: `Render a markdown report in the terminal. A bare name is looked up in the
reports directory; the default is final_summary.md.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.ReportsDir, report.FinalSummaryName)
		if len(args) > 0 {
			path = args[0]
			if filepath.Base(path) == path {
				path = filepath.Join(cfg.ReportsDir, path)
			}
		}
		width, _ := cmd.Flags().GetInt("width")
		out, err := report.RenderFile(path, width)
		if err != nil {
			return fmt.Errorf("render %s: %w", path, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportChangelogCmd)
	reportCmd.AddCommand(reportStatsCmd)
	reportCmd.AddCommand(reportOverviewCmd)
	reportCmd.AddCommand(reportMetaCmd)
	reportCmd.AddCommand(reportScoresCmd)
	reportCmd.AddCommand(reportLearningCmd)
	reportCmd.AddCommand(reportTracesCmd)
	reportCmd.AddCommand(reportMonitorCmd)
	reportCmd.AddCommand(reportShowCmd)

	reportShowCmd.Flags().Int("width", 100, "Word wrap width")
}

func collectStats(ctx context.Context, s *state) ([]report.AgentStat, error) {
	calls, err := s.journal.CountByAgent()
	if err != nil {
		return nil, fmt.Errorf("count journal calls: %w", err)
	}
	log, err := s.learning.Log(ctx)
	if err != nil {
		return nil, fmt.Errorf("load learning log: %w", err)
	}
	traces, err := s.tracer.Load()
	if err != nil {
		return nil, fmt.Errorf("load traces: %w", err)
	}
	return report.CollectStats(report.Sources{Calls: calls, Learning: log, Traces: traces}), nil
}
