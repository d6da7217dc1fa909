package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/journal"
	"github.com/philjestin/studiomode/internal/pipeline"
	"github.com/philjestin/studiomode/internal/server"
	"github.com/philjestin/studiomode/internal/task"
)

// serveCmd groups the HTTP surfaces.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor, webhook or dashboard server",
}

var serveMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Serve /status, /reports and /ci-status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		m := &server.Monitor{
			StatusPath:    cfg.Paths.Status,
			ReportsDir:    cfg.ReportsDir,
			ChangelogPath: cfg.Paths.Changelog,
		}
		return serveUntilSignal(cmd, "monitor", cfg.Server.MonitorPort, m.Handler())
	},
}

var serveDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the feature index and journal at /data",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		d := &server.Dashboard{
			Index:   index.NewFeatureIndex(cfg.Paths.Index),
			Journal: journal.New(cfg.Paths.Journal),
		}
		return serveUntilSignal(cmd, "dashboard", cfg.Server.DashboardPort, d.Handler())
	},
}

var serveWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Trigger a pipeline run on POST /trigger",
	Long: `Start a pipeline run for each authorised POST /trigger.

The request to run comes from --file (one feature) or --multi (a batch).
Requests are re-read on every trigger, so the file can change between runs.
Only one run is in flight at a time; further triggers get 409.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		multi, _ := cmd.Flags().GetString("multi")
		optimize, _ := cmd.Flags().GetBool("optimize")
		if (file == "") == (multi == "") {
			return errors.New("set exactly one of --file or --multi")
		}

		ctx, cancel := signalContext(context.Background())
		defer cancel()

		r, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		w := &server.Webhook{
			Token:   r.Config.Server.WebhookToken,
			Journal: r.Journal,
			Trigger: func(ctx context.Context) error {
				return triggerRun(ctx, r, file, multi, optimize)
			},
		}
		defer w.Wait()

		port, err := portFlag(cmd, r.Config.Server.WebhookPort)
		if err != nil {
			return err
		}
		return server.Serve(ctx, server.Addr(port), "webhook", w.Handler(ctx))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.AddCommand(serveMonitorCmd)
	serveCmd.AddCommand(serveDashboardCmd)
	serveCmd.AddCommand(serveWebhookCmd)

	serveCmd.PersistentFlags().Int("port", 0, "Listen port (default from config)")
	serveWebhookCmd.Flags().StringP("file", "f", "", "Feature request file to run on trigger")
	serveWebhookCmd.Flags().String("multi", "", "Batch YAML file to run on trigger")
	serveWebhookCmd.Flags().Bool("optimize", false, "Use the pipeline optimizer")
}

// triggerRun runs the request file or batch behind a webhook trigger.
func triggerRun(ctx context.Context, r *pipeline.Runner, file, multi string, optimize bool) error {
	if multi != "" {
		batch, err := config.LoadBatch(multi)
		if err != nil {
			return err
		}
		_, _, err = r.RunBatch(ctx, batch, optimize)
		return err
	}
	t, err := task.CreateFromFile(file, "", "")
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, t.GetFeatureName(), t.GetDescription(), optimize)
	return err
}

func serveUntilSignal(cmd *cobra.Command, name string, defaultPort int, h http.Handler) error {
	port, err := portFlag(cmd, defaultPort)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(context.Background())
	defer cancel()
	return server.Serve(ctx, server.Addr(port), name, h)
}

func portFlag(cmd *cobra.Command, def int) (int, error) {
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = def
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %d", port)
	}
	return port, nil
}
