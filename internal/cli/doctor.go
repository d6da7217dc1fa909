package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/healthcheck"
	"github.com/philjestin/studiomode/internal/llm"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the engine toolchain and the model server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}

		var tagger healthcheck.Tagger
		if skip, _ := cmd.Flags().GetBool("skip-llm"); !skip {
			tagger = llm.New(cfg.LLM.BaseURL)
		}
		results := healthcheck.Check(cmd.Context(), healthcheck.DefaultDependencies(cfg.EngineCLI), tagger)
		fmt.Fprint(cmd.OutOrStdout(), results.Format())

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "⚠️  config: %v\n", err)
		}
		return results.Error()
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().Bool("skip-llm", false, "Do not check the model server")
}
