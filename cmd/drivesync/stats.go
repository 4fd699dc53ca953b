package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "views",
	Aliases: []string{"status"},
	Short:   "Show index and bandwidth statistics",
	Long: `Shows a snapshot of the index (file/folder counts, last index
times, current indexing progress) and cumulative bandwidth usage for
this session.

Examples:
  drivesync stats
  drivesync status   # alias`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		stats, err := e.Stats()
		if err != nil {
			return fmt.Errorf("read index stats: %w", err)
		}
		session := e.Bandwidth.SessionStats()
		net := e.NetworkStatus()

		cmd.Printf("files:            %d\n", stats.TotalFiles)
		cmd.Printf("folders:          %d\n", stats.TotalFolders)
		cmd.Printf("total size:       %d bytes\n", stats.TotalBytes)
		cmd.Printf("last full index:  %s\n", stats.LastFullIndex)
		cmd.Printf("indexing:         %v (%d%%, %s)\n", stats.IsIndexing, stats.IndexingProgress, stats.IndexingStatus)
		cmd.Printf("uploaded:         %d bytes (%d files)\n", session.TotalUploaded, session.FilesUploaded)
		cmd.Printf("downloaded:       %d bytes (%d files)\n", session.TotalDownloaded, session.FilesDownloaded)
		cmd.Printf("network:          online=%v metered=%v\n", net.Online, net.Metered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
