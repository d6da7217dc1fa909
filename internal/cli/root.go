// Package cli provides the command-line interface for studio.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/philjestin/studiomode/internal/config"
	"github.com/philjestin/studiomode/internal/logger"
	"github.com/philjestin/studiomode/internal/pipeline"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Multi-agent game feature pipeline",
	Long: `Studio turns a feature request into engine code through a chain of agents:

  1. Plan the stages for the request
  2. Design, write and test the feature with local models
  3. Inspect, review and build the result
  4. Publish artifacts and write the CI reports
  5. Restore the last good snapshot when a run fails`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		opts := logger.DefaultOptions()
		if viper.GetBool("debug") {
			opts.Level = logger.LevelDebug
		}
		logger.Init(opts)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.studio.yaml)")
	rootCmd.PersistentFlags().String("work-dir", ".", "workspace holding state files and reports")
	rootCmd.PersistentFlags().String("project", "", "engine project path (overrides PROJECT_PATH)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	viper.BindPFlag("work_dir", rootCmd.PersistentFlags().Lookup("work-dir"))
	viper.BindPFlag(config.ProjectFlagKey, rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".studio")
	}

	viper.SetEnvPrefix("STUDIO")
	viper.AutomaticEnv()

	viper.ReadInConfig()
}

// loadConfig loads the configuration, validating the engine settings when engine is set.
func loadConfig(engine bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if engine {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// openRunner loads a validated config and wires the pipeline services.
func openRunner(ctx context.Context) (*pipeline.Runner, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, err
	}
	r, err := pipeline.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline: %w", err)
	}
	return r, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
