// Package engine wires the crypto, index, indexer, watcher, bandwidth, and
// network components into the single host-facing surface described in
// SPEC_FULL.md §6: initialize/shutdown, index control, search variants,
// sync-status updates, transfer lifecycle, throttle limits, session
// reset, and watcher registration with a sync-callback.
package engine

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"

	"github.com/untoldecay/drivesync/internal/bandwidth"
	"github.com/untoldecay/drivesync/internal/config"
	"github.com/untoldecay/drivesync/internal/cryptutil"
	"github.com/untoldecay/drivesync/internal/index"
	"github.com/untoldecay/drivesync/internal/indexer"
	"github.com/untoldecay/drivesync/internal/logging"
	"github.com/untoldecay/drivesync/internal/network"
	"github.com/untoldecay/drivesync/internal/watcher"
)

// Engine is the host-owned aggregate of every sync-engine component. It is
// the reference wiring a host process (the CLI in this repository, or an
// external GUI) builds once per run. Components are exported fields, not
// hidden behind an interface, per SPEC_FULL.md §9's "process-wide
// singletons become values owned by the host" re-architecture note.
type Engine struct {
	Config    *config.Config
	Logger    *logging.Logger
	Index     *index.Store
	Indexer   *indexer.Indexer
	Watcher   *watcher.Watcher
	Bandwidth *bandwidth.Monitor
	Network   *network.Monitor

	lock       *flock.Flock
	lockLocked bool

	cancel context.CancelFunc
}

// New constructs every component from cfg without starting any background
// work; call Initialize to bring the engine up. It does touch disk: it loads
// or creates the keyfile and opens the log file when one is configured.
func New(cfg *config.Config) (*Engine, error) {
	logger, err := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("engine: create logger: %w", err)
	}

	key, err := cryptutil.LoadOrCreateKey(cfg.KeyfilePath())
	if err != nil {
		return nil, fmt.Errorf("engine: load or create key: %w", err)
	}

	store := index.New(cfg.DatabasePath(), key, logger.WithPrefix("[index]"))
	store.SetFTSOverride(cfg.DisableFTS)

	ix := indexer.New(store, cfg.RemoteName, cfg.ListerPath, cfg.ListerBundleEnvVar, logger.WithPrefix("[indexer]"))
	store.SetIndexingStopper(ix.Stop)

	w, err := watcher.New(cfg.DebounceWindow, logger.WithPrefix("[watcher]"))
	if err != nil {
		return nil, fmt.Errorf("engine: create watcher: %w", err)
	}

	bw := bandwidth.New(logger.WithPrefix("[bandwidth]").Debug)
	bw.SetUploadLimit(cfg.UploadLimitBPS)
	bw.SetDownloadLimit(cfg.DownloadLimitBPS)

	nm := network.New(logger.WithPrefix("[network]").Debug,
		network.WithInterfaces(cfg.Interfaces),
		network.WithReachURL(cfg.ReachURL),
	)

	return &Engine{
		Config:    cfg,
		Logger:    logger,
		Index:     store,
		Indexer:   ix,
		Watcher:   w,
		Bandwidth: bw,
		Network:   nm,
		lock:      flock.New(cfg.LockPath()),
	}, nil
}

// Initialize takes the single-instance lock, opens the encrypted index,
// and starts the network monitor. It does not start the watcher or any
// indexing run — callers that want those call Watcher.AddWatch/Start and
// Indexer.Start explicitly.
func (e *Engine) Initialize(ctx context.Context) error {
	locked, err := e.lock.TryLock()
	if err != nil {
		return fmt.Errorf("engine: acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("engine: another instance is already running (lock held at %s)", e.Config.LockPath())
	}
	e.lockLocked = true

	if err := e.Index.Initialize(); err != nil {
		return fmt.Errorf("engine: initialize index: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.Network.Start(runCtx)

	e.Logger.Info("engine: initialized")
	return nil
}

// Shutdown is idempotent: it stops the watcher and network monitor,
// shuts down the index store (which itself stops any in-flight indexing
// and re-encrypts the database), releases the instance lock, and closes
// the logger's file handle.
func (e *Engine) Shutdown() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.Watcher.Stop()
	e.Network.Stop()

	err := e.Index.Shutdown()

	if e.lockLocked {
		_ = e.lock.Unlock()
		e.lockLocked = false
	}
	_ = e.Logger.Close()

	if err != nil {
		return fmt.Errorf("engine: shutdown index: %w", err)
	}
	return nil
}
