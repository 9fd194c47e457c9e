package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tandem/internal/config"
	"github.com/fakeyudi/tandem/internal/logging"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the process-wide logger, file-backed under .tandem/logs.
var logger = zap.NewNop()

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "tandem",
	Short: "Pair-program with an LLM in your terminal, with every change checkpointed in git",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		global, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		project, err := config.LoadProject()
		if err != nil {
			return err
		}
		cfg = config.Merge(global, project)
		if debugFlag {
			cfg.Debug = true
		}

		log, err := logging.New(filepath.Join(".tandem", "logs"), cfg.Debug)
		if err != nil {
			return err
		}
		logger = log
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
