package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tandem/internal/checkpoint"
	"github.com/fakeyudi/tandem/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run -- <command>",
	Short: "Run one shell command and checkpoint the result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := os.Getwd()
		if err != nil {
			return err
		}

		checkpoints := checkpoint.NewManager(workDir, logger)
		if err := checkpoints.EnsureRepo(); err != nil {
			return err
		}

		command := strings.Join(args, " ")
		r := runner.New(workDir, logger)
		r.Shell = cfg.Shell

		info, err := r.Run(cmd.Context(), command)
		if err != nil {
			return err
		}
		fmt.Print(info.Stdout)
		if info.Stderr != "" {
			fmt.Fprint(os.Stderr, info.Stderr)
		}

		id, err := checkpoints.Commit("Executed command: " + command)
		if err != nil {
			return err
		}
		fmt.Printf("Checkpoint %s (exit %d)\n", id, info.Code)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
