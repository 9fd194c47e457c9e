package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tandem/internal/session"
	"github.com/fakeyudi/tandem/internal/tui"
)

var browseFlag bool

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List saved chat sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewStore(cfg.SessionsDir)
		if err != nil {
			return err
		}

		if browseFlag {
			return tui.Run(store)
		}

		ids, err := store.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No saved sessions.")
			return nil
		}
		for i, id := range ids {
			sess, err := store.LoadByID(id)
			if err != nil {
				fmt.Printf("  %2d. %s (unreadable: %v)\n", i+1, id, err)
				continue
			}
			fmt.Printf("  %2d. %s  (%d messages)\n", i+1, id, len(sess.Messages))
		}
		return nil
	},
}

func init() {
	sessionsCmd.Flags().BoolVarP(&browseFlag, "browse", "b", false, "browse sessions in an interactive viewer")
	rootCmd.AddCommand(sessionsCmd)
}
