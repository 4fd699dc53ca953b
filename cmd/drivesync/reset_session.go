package main

import (
	"github.com/spf13/cobra"
)

var resetSessionCmd = &cobra.Command{
	Use:     "reset-session",
	GroupID: "views",
	Short:   "Clear cumulative bandwidth counters and transfer history",
	Long: `Resets the in-memory bandwidth session: cumulative uploaded/
downloaded byte counters, error counts, and completed-transfer history.
The persisted index is not affected.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		e.ResetSession()
		cmd.Println("session stats reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetSessionCmd)
}
