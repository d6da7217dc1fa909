package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/inbox"
	"github.com/philjestin/studiomode/internal/pipeline"
	"github.com/philjestin/studiomode/internal/task"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run feature requests dropped into the inbox directory",
	Long: `Watch the inbox directory and run every request file dropped into it.

  *.txt, *.md     one feature, named after the file
  *.yaml, *.yml   a batch with a features: mapping

Handled files are moved to processed/. Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(context.Background())
		defer cancel()

		r, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = r.Config.Paths.Inbox
		}
		optimize, _ := cmd.Flags().GetBool("optimize")

		w := inbox.New(dir, inboxHandler(r, optimize))
		if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
			w.Debounce = d
		}
		return w.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("dir", "", "Inbox directory (default <work-dir>/requests)")
	watchCmd.Flags().Duration("debounce", inbox.DefaultDebounce, "Quiet time before a new file is read")
	watchCmd.Flags().Bool("optimize", false, "Use the pipeline optimizer")
}

func inboxHandler(r *pipeline.Runner, optimize bool) inbox.Handler {
	return func(ctx context.Context, req inbox.Request) error {
		r.Journal.Log("Inbox", "request "+filepath.Base(req.Path))
		if req.IsBatch() {
			_, _, err := r.RunBatch(ctx, req.Batch, optimize)
			return err
		}
		_, err := r.Run(ctx, task.SanitizeFeatureName(req.Feature), req.Prompt, optimize)
		return err
	}
}
