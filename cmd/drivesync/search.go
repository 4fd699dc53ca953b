package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "views",
	Short:   "Search indexed file names",
	Args:    cobra.ExactArgs(1),
	Long: `Searches the local index of the remote file tree by name and path.

The query is matched as a case-insensitive substring of each entry's
name or full remote path; full-text search is not used here, and * is
matched as a literal character.

Examples:
  drivesync search invoice
  drivesync search report --ext=pdf,docx
  drivesync search "" --path=drive:/Photos --synced-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ext, _ := cmd.Flags().GetString("ext")
		path, _ := cmd.Flags().GetString("path")
		syncedOnly, _ := cmd.Flags().GetBool("synced-only")
		cloudOnly, _ := cmd.Flags().GetBool("cloud-only")
		limit, _ := cmd.Flags().GetInt("limit")
		if syncedOnly && cloudOnly {
			return fmt.Errorf("search: --synced-only and --cloud-only are mutually exclusive")
		}

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		results, err := e.SearchWithFilters(args[0], ext, path, syncedOnly, cloudOnly, limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		for _, entry := range results {
			marker := "cloud"
			if entry.IsSynced {
				marker = "synced"
			}
			cmd.Printf("%-8s %10d  %s\n", marker, entry.Size, entry.Path)
		}
		cmd.Printf("%d result(s)\n", len(results))
		return nil
	},
}

func init() {
	searchCmd.Flags().String("ext", "", "comma-separated list of file extensions to match")
	searchCmd.Flags().String("path", "", "restrict results to entries under this path prefix")
	searchCmd.Flags().Bool("synced-only", false, "only show entries with a local copy")
	searchCmd.Flags().Bool("cloud-only", false, "only show entries that exist only in the cloud")
	searchCmd.Flags().Int("limit", 50, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
