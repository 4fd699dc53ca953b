package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/drivesync/internal/config"
	"github.com/untoldecay/drivesync/internal/engine"
)

var (
	cfgFile string
	cfg     *config.Config
	rootCtx = context.Background()
)

var rootCmd = &cobra.Command{
	Use:           "drivesync",
	Short:         "Local synchronization engine for a cloud drive remote",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "index", Title: "Indexing:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "daemon", Title: "Daemon:"},
	)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML configuration file (overrides the default search path)")
}

// newEngine builds and initializes an Engine from the loaded configuration.
// Callers must defer e.Shutdown().
func newEngine() (*engine.Engine, error) {
	e, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(rootCtx); err != nil {
		return nil, err
	}
	return e, nil
}
