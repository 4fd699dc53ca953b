package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "index",
	Short:   "Run a one-shot indexing pass against the remote",
	Long: `Runs the streaming importer once and exits once it finishes.

By default this performs an incremental pass: existing entries are kept
and only refreshed. Pass --full to clear the index first and rebuild it
from scratch.

Examples:
  drivesync index              # incremental pass
  drivesync index --full       # full reindex`,
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		if err := e.StartIndexing(rootCtx, full); err != nil {
			return fmt.Errorf("start indexing: %w", err)
		}
		e.WaitIndexing()

		stats, err := e.Stats()
		if err != nil {
			return fmt.Errorf("read stats: %w", err)
		}
		cmd.Printf("indexed %d files, %d folders (%s)\n", stats.TotalFiles, stats.TotalFolders, stats.IndexingStatus)
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("full", false, "clear the index and rebuild it from scratch")
	rootCmd.AddCommand(indexCmd)
}
