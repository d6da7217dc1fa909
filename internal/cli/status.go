package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/status"
	"github.com/philjestin/studiomode/internal/store"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

var stateStyles = map[status.State]lipgloss.Style{
	status.StateQueued:  lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")),
	status.StateRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
	status.StatePassed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
	status.StateFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
}

func cell(width int) lipgloss.Style {
	return lipgloss.NewStyle().Width(width).PaddingRight(1)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the pipeline status of each feature",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		doc := status.Load(cfg.Paths.Status)
		fmt.Fprint(cmd.OutOrStdout(), renderStatus(doc))

		limit, _ := cmd.Flags().GetInt("runs")
		if limit <= 0 {
			return nil
		}
		s, err := openState(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		runs, err := s.db.Runs(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("load run history: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), renderRuns(runs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Int("runs", 0, "Also list the last N recorded runs")
}

// renderRuns formats recorded runs, newest first.
func renderRuns(runs []store.Run) string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render("RECENT RUNS"))
	sb.WriteString("\n")
	if len(runs) == 0 {
		sb.WriteString("none\n")
		return sb.String()
	}
	for _, r := range runs {
		state := status.StateFailed
		if r.Status == report.FeatureSuccess {
			state = status.StatePassed
		}
		if r.EndedAt == nil {
			state = status.StateRunning
		}
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			cell(20).Render(r.StartedAt.Local().Format("2006-01-02 15:04:05")),
			cell(24).Render(r.Feature),
			stateStyles[state].Render(string(state)),
		))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderStatus formats the status document as a table.
func renderStatus(doc status.Document) string {
	names := doc.Names()
	if len(names) == 0 {
		return "No pipeline runs yet\n"
	}

	widths := []int{24, 9, 10, 28, 0}
	row := func(cols ...string) string {
		parts := make([]string, len(cols))
		for i, c := range cols {
			if widths[i] == 0 {
				parts[i] = c
				continue
			}
			parts[i] = cell(widths[i]).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	var sb strings.Builder
	if doc.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run %s", doc.RunID))
		if doc.Multi {
			sb.WriteString(" (batch)")
		}
		sb.WriteString("\n\n")
	}
	sb.WriteString(headerStyle.Render(row("FEATURE", "STATUS", "DURATION", "STAGE", "SUMMARY")))
	sb.WriteString("\n")

	for _, name := range names {
		f := doc.Features[name]
		state := stateStyles[f.Status].Render(string(f.Status))

		duration := "-"
		if f.Duration > 0 {
			duration = fmt.Sprintf("%.1fs", f.Duration)
		}

		stage := "-"
		if n := len(f.Stages); n > 0 {
			last := f.Stages[n-1]
			stage = fmt.Sprintf("%s %s", last.Agent, last.Status)
		}

		detail := f.SummaryPath
		if f.Error != "" {
			detail = f.Error
		}
		sb.WriteString(row(name, state, duration, stage, detail))
		sb.WriteString("\n")
	}

	counts := doc.Summary()
	sb.WriteString(fmt.Sprintf("\n%d queued, %d running, %d passed, %d failed\n",
		counts[status.StateQueued], counts[status.StateRunning], counts[status.StatePassed], counts[status.StateFailed]))
	return sb.String()
}
