package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/index"
	"github.com/philjestin/studiomode/internal/preflight"
)

// mapCmd checks and syncs project_map.json.
var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Validate or sync project_map.json",
}

var mapValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate project_map.json against the project tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		v := preflight.New(cfg.ProjectPath, index.NewProjectMap(cfg.Paths.ProjectMap))
		result, err := v.Validate(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			fmt.Fprint(out, result.Format())
		} else {
			fmt.Fprintln(out, result.Concise())
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  ❌ [%s] %s\n", e.Code, e.Message)
			}
		}
		if !result.Valid {
			return fmt.Errorf("project map invalid: %d error(s)", len(result.Errors))
		}
		return nil
	},
}

var mapSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy feature statuses from project_map.json into feature_index.json",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		n, err := preflight.Sync(index.NewProjectMap(cfg.Paths.ProjectMap), index.NewFeatureIndex(cfg.Paths.Index))
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🔄 Synced %d feature(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	mapCmd.AddCommand(mapValidateCmd)
	mapCmd.AddCommand(mapSyncCmd)

	mapValidateCmd.Flags().BoolP("verbose", "v", false, "Print warnings and verified files")
}
