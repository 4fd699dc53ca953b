package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/untoldecay/drivesync/internal/network"
)

var daemonSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "daemon",
	Short:   "Run the sync engine as a long-lived background process",
	Long: `Starts the index store, watches the configured sync root for
local changes, and monitors network reachability, until interrupted.

A filesystem change debounces for the configured window before it
triggers an incremental indexing pass against the remote. Network state
transitions are logged.

Examples:
  drivesync daemon`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, daemonSignals...)
		defer signal.Stop(sigChan)

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Shutdown()

		e.OnSyncNeeded(func(jobID string) {
			e.Logger.Info("daemon: sync root %s changed, starting incremental index", jobID)
			if err := e.StartIndexing(ctx, false); err != nil {
				e.Logger.Warn("daemon: incremental index not started: %v", err)
			}
		})
		e.OnNetworkChange(func(status network.Status) {
			e.Logger.Info("daemon: network changed: online=%v metered=%v", status.Online, status.Metered)
		})

		jobID := e.WatchJobID()
		if err := e.AddSyncRoot(jobID, e.Config.SyncRoot); err != nil {
			return fmt.Errorf("watch sync root: %w", err)
		}
		e.StartWatching(ctx)

		if err := e.StartIndexing(ctx, false); err != nil {
			e.Logger.Warn("daemon: initial index not started: %v", err)
		}

		e.Logger.Info("daemon: running, watching %s", e.Config.SyncRoot)
		<-sigChan
		e.Logger.Info("daemon: shutting down")
		e.StopIndexing()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
