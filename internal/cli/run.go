package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/events"
	"github.com/philjestin/studiomode/internal/report"
	"github.com/philjestin/studiomode/internal/task"
)

// runCmd represents the run command - the main pipeline executor.
var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Run a feature request through the pipeline",
	Long: `Run one feature request, or a batch of them, through the agent pipeline.

Input modes:
  studio run "Add a double jump"         Prompt as argument
  studio run --prompt "Add a double jump"
  studio run --file request.md           Prompt from a file
  studio run --multi sprint.yaml         Batch of features, one after another
  studio run                             Prompt from stdin, ended by a line with END

Each feature is backed up before it runs and restored when the run fails.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("prompt", "p", "", "Feature request text")
	runCmd.Flags().StringP("file", "f", "", "Read the feature request from a file")
	runCmd.Flags().String("multi", "", "Run every feature of a batch YAML file")
	runCmd.Flags().String("feature", "", "Override the feature name")
	runCmd.Flags().String("title", "", "Override the feature title")
	runCmd.Flags().Bool("optimize", false, "Skip stages the optimizer marks as safe to skip")
	runCmd.Flags().Bool("events", false, "Emit JSON progress events on stdout")

	viper.BindPFlag("optimize", runCmd.Flags().Lookup("optimize"))
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	optimize := viper.GetBool("optimize")
	if emit, _ := cmd.Flags().GetBool("events"); emit {
		events.SetOutput(cmd.OutOrStdout())
		defer events.SetOutput(nil)
	}
	multi, _ := cmd.Flags().GetString("multi")

	var batch []config.BatchFeature
	var t task.Task
	if multi != "" {
		var err error
		batch, err = config.LoadBatch(multi)
		if err != nil {
			return fmt.Errorf("failed to load batch: %w", err)
		}
		if len(batch) == 0 {
			return fmt.Errorf("batch %s has no features", multi)
		}
	} else {
		var err error
		t, err = resolveTask(cmd, args)
		if err != nil {
			return err
		}
	}

	r, err := openRunner(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	if batch != nil {
		path, results, err := r.RunBatch(ctx, batch, optimize)
		if err != nil {
			return fmt.Errorf("batch failed: %w", err)
		}
		failed := 0
		for _, res := range results {
			if res.Status != report.FeatureSuccess {
				failed++
			}
		}
		fmt.Printf("📊 %d/%d feature(s) passed. Summary: %s\n", len(results)-failed, len(results), path)
		if failed > 0 {
			return fmt.Errorf("%d feature(s) failed", failed)
		}
		return nil
	}

	fmt.Printf("🎮 Feature: %s (%s)\n", t.GetTitle(), t.GetFeatureName())
	res, err := r.Run(ctx, t.GetFeatureName(), t.GetDescription(), optimize)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	fmt.Printf("✅ Summary: %s\n", res.Summary)
	return nil
}

// resolveTask builds the request from --prompt, --file, the arguments or stdin, in that order.
func resolveTask(cmd *cobra.Command, args []string) (task.Task, error) {
	prompt, _ := cmd.Flags().GetString("prompt")
	file, _ := cmd.Flags().GetString("file")
	feature, _ := cmd.Flags().GetString("feature")
	title, _ := cmd.Flags().GetString("title")

	switch {
	case prompt != "" && file != "":
		return nil, errors.New("use either --prompt or --file, not both")
	case prompt != "":
		return task.CreateFromPrompt(prompt, title, feature)
	case file != "":
		return task.CreateFromFile(file, title, feature)
	case len(args) > 0:
		return task.CreateFromPrompt(strings.Join(args, " "), title, feature)
	}

	in := cmd.InOrStdin()
	if in == os.Stdin {
		fmt.Fprintf(cmd.ErrOrStderr(), "🚀 Enter the feature request. Finish with %s on its own line:\n", task.EndMarker)
	}
	return task.CreateFromReader(in, title, feature)
}
