// Command drivesync runs the local synchronization engine for a cloud
// drive remote: it indexes the remote file tree, watches local sync
// roots for changes, and exposes search and status over a small CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
