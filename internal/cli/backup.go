package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/philjestin/studiomode/internal/backup"
	"github.com/philjestin/studiomode/internal/config"
)

// backupCmd manages feature snapshots of the project.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Save, restore and list project snapshots",
	Long: `Snapshots copy the project tree under the backup root, one versioned
directory per feature. The pipeline saves one before every run and restores
it when the run fails.`,
}

var backupSaveCmd = &cobra.Command{
	Use:   "save [feature]",
	Short: "Snapshot the project under a feature name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, m, err := backupManager()
		if err != nil {
			return err
		}
		snap, err := m.Save(args[0], cfg.ProjectPath)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "💾 Saved %s version %s\n", snap.Feature, snap.Version)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore [feature]",
	Short: "Restore the newest (or a given) snapshot of a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, m, err := backupManager()
		if err != nil {
			return err
		}
		version, _ := cmd.Flags().GetString("version")

		var snap backup.Snapshot
		if version != "" {
			snap, err = m.RestoreVersion(args[0], version, cfg.ProjectPath)
		} else {
			snap, err = m.Restore(args[0], cfg.ProjectPath)
		}
		if errors.Is(err, backup.ErrNotFound) {
			return fmt.Errorf("no backup for %s", args[0])
		}
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "♻️  Restored %s version %s\n", snap.Feature, snap.Version)
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list [feature]",
	Short: "List snapshots, for one feature or all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, m, err := backupManager()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		features := args
		if len(features) == 0 {
			if features, err = m.Features(); err != nil {
				return err
			}
		}
		if len(features) == 0 {
			fmt.Fprintln(out, "No backups")
			return nil
		}

		for _, f := range features {
			versions, err := m.List(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s:\n", f)
			for _, s := range versions {
				fmt.Fprintf(out, "  • %s  (%s)\n", s.Version, s.Created.Local().Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune [feature]",
	Short: "Remove all but the newest snapshots of a feature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, m, err := backupManager()
		if err != nil {
			return err
		}
		keep, _ := cmd.Flags().GetInt("keep")
		removed, err := m.Prune(args[0], keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "🧹 Removed %d snapshot(s) of %s\n", len(removed), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupSaveCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupPruneCmd)

	backupRestoreCmd.Flags().String("version", "", "Restore this version instead of the newest")
	backupPruneCmd.Flags().Int("keep", 1, "Number of snapshots to keep")
}

func backupManager() (*config.Config, *backup.Manager, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, nil, err
	}
	if cfg.ProjectPath == "" {
		return nil, nil, errors.New("project path is required (set PROJECT_PATH or project_path)")
	}
	return cfg, backup.NewManager(cfg.Backup.Root, cfg.Backup.Keep), nil
}
