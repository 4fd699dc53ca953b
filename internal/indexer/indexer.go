// Package indexer implements the background streaming importer: it
// invokes the external listing tool, parses its structured output
// incrementally, and persists entries into the index store in
// transactional batches while reporting progress.
package indexer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/untoldecay/drivesync/internal/index"
	"github.com/untoldecay/drivesync/internal/logging"
)

const batchSize = 500

// Store is the subset of *index.Store the indexer depends on.
type Store interface {
	InsertFilesBatch(rows []index.Entry) (int, error)
	UpdateIndexingProgress(indexing bool, percent int, status string)
	UpdateLastFullIndexTime() error
	ClearIndex() error
}

// Indexer runs the streaming import on a dedicated worker. Only one run
// may be in flight; Start rejects a second attempt atomically.
type Indexer struct {
	store      Store
	remoteName string
	listerPath string
	bundleEnv  string
	logger     *logging.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu          sync.Mutex
	lastError   error
}

// New constructs an Indexer against store, targeting remoteName, with an
// optional listerPath override and bundleEnvVar for binary discovery.
func New(store Store, remoteName, listerPath, bundleEnvVar string, logger *logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Indexer{
		store:      store,
		remoteName: remoteName,
		listerPath: listerPath,
		bundleEnv:  bundleEnvVar,
		logger:     logger,
	}
}

// IsIndexing reports whether a run is currently in flight.
func (ix *Indexer) IsIndexing() bool {
	return ix.running.Load()
}

// Start begins an indexing run in the background. If full is true, the
// existing index is cleared before importing. Returns
// ErrAlreadyIndexing if a run is already in flight.
func (ix *Indexer) Start(ctx context.Context, full bool) error {
	if !ix.running.CompareAndSwap(false, true) {
		return ErrAlreadyIndexing
	}
	runCtx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer ix.running.Store(false)
		defer cancel()
		if err := ix.run(runCtx, full); err != nil {
			ix.mu.Lock()
			ix.lastError = err
			ix.mu.Unlock()
			ix.logger.Error("indexer: run failed: %v", err)
		}
	}()
	return nil
}

// Stop requests cancellation of an in-flight run and blocks until it has
// exited (flushing its partial batch first).
func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
	ix.wg.Wait()
}

// Wait blocks until the current run (if any) completes on its own,
// without requesting cancellation.
func (ix *Indexer) Wait() {
	ix.wg.Wait()
}

// LastError returns the error from the most recent run, if any.
func (ix *Indexer) LastError() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.lastError
}

// run executes the protocol described in SPEC_FULL.md §4.3.
func (ix *Indexer) run(ctx context.Context, full bool) error {
	start := time.Now()
	ix.store.UpdateIndexingProgress(true, 0, "Starting")

	if full {
		if err := ix.store.ClearIndex(); err != nil {
			ix.store.UpdateIndexingProgress(false, 0, fmt.Sprintf("Error: %v", err))
			return fmt.Errorf("indexer: clear index before full reindex: %w", err)
		}
		ix.store.UpdateIndexingProgress(true, 5, "Starting")
	}

	if err := ensureValidCWD(); err != nil {
		ix.store.UpdateIndexingProgress(false, 0, "Error: invalid working directory")
		return fmt.Errorf("indexer: ensure valid cwd: %w", err)
	}

	listerPath, err := discoverLister(ix.listerPath, ix.bundleEnv)
	if err != nil {
		ix.store.UpdateIndexingProgress(false, 0, "Error: lister not found")
		return fmt.Errorf("indexer: discover lister: %w", err)
	}

	cmd := buildListerCommand(listerPath, ix.remoteName)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ix.store.UpdateIndexingProgress(false, 0, "Error: spawn failed")
		return fmt.Errorf("indexer: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		ix.store.UpdateIndexingProgress(false, 0, "Error: spawn failed")
		return fmt.Errorf("indexer: start lister: %w", err)
	}

	total, flushErr, cancelled := ix.consume(ctx, stdout, start)

	if cancelled && cmd.Process != nil {
		// The lister may still be writing past the last record we read;
		// without a reader draining stdout, Wait would block on a full
		// pipe buffer indefinitely. Killing it is safe: cancellation
		// already means the run's output is being discarded.
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	if flushErr != nil {
		ix.store.UpdateIndexingProgress(false, 0, fmt.Sprintf("Error: %v", flushErr))
		return flushErr
	}
	if waitErr != nil && !cancelled {
		ix.logger.Warn("indexer: lister exited with error: %v", waitErr)
	}

	if cancelled {
		ix.store.UpdateIndexingProgress(false, 0, "Cancelled")
		ix.logger.Info("indexer: run cancelled after %d records", total)
		return nil
	}

	if total == 0 {
		ix.store.UpdateIndexingProgress(false, 0, "Error: No files")
		return nil
	}

	if err := ix.store.UpdateLastFullIndexTime(); err != nil {
		ix.store.UpdateIndexingProgress(false, 0, fmt.Sprintf("Error: %v", err))
		return fmt.Errorf("indexer: update last index time: %w", err)
	}

	ix.store.UpdateIndexingProgress(false, 100, fmt.Sprintf("Indexed %d entries", total))
	ix.logger.Info("indexer: completed run with %d entries in %s", total, time.Since(start).Round(time.Millisecond))
	return nil
}

// consume streams records from stdout, batching and flushing every
// batchSize entries, reporting progress, and honoring ctx cancellation by
// flushing the partial batch before returning.
func (ix *Indexer) consume(ctx context.Context, stdout io.Reader, start time.Time) (total int, flushErr error, cancelled bool) {
	rootSentinel := ix.remoteName + ":/"
	batch := make([]index.Entry, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		saved, err := ix.store.InsertFilesBatch(batch)
		if err != nil {
			return fmt.Errorf("indexer: flush batch: %w", err)
		}
		total += saved
		batch = batch[:0]

		percent := 10 + total/100
		if percent > 90 {
			percent = 90
		}
		elapsed := time.Since(start).Round(time.Second)
		ix.store.UpdateIndexingProgress(true, percent, fmt.Sprintf("Indexed %d entries (%s elapsed)", total, elapsed))
		return nil
	}

	parseErr := streamRecords(stdout, func(rec record) error {
		select {
		case <-ctx.Done():
			cancelled = true
			return errStopStreaming
		default:
		}

		path := rootSentinel + rec.Path
		entry := index.Entry{
			Name:        rec.Name,
			Path:        path,
			ParentPath:  index.ParentPathOf(path, rootSentinel),
			Size:        rec.Size,
			ModTime:     rec.ModTime,
			IsDirectory: rec.IsDir,
			IsSynced:    false,
			Extension:   index.ExtensionOf(rec.Name),
			IndexedAt:   time.Now().Format("2006-01-02T15:04:05"),
		}
		batch = append(batch, entry)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})

	if parseErr != nil && parseErr != errStopStreaming {
		return total, fmt.Errorf("indexer: stream parse: %w", parseErr), cancelled
	}

	if err := flush(); err != nil {
		return total, err, cancelled
	}
	return total, nil, cancelled
}
