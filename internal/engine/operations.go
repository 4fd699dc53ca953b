package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/untoldecay/drivesync/internal/bandwidth"
	"github.com/untoldecay/drivesync/internal/index"
	"github.com/untoldecay/drivesync/internal/network"
)

// StartIndexing begins a background indexing run; full requests a clean
// reindex of every remote entry instead of an incremental pass.
func (e *Engine) StartIndexing(ctx context.Context, full bool) error {
	return e.Indexer.Start(ctx, full)
}

// StopIndexing cancels an in-flight indexing run and waits for it to
// flush its partial batch and exit.
func (e *Engine) StopIndexing() {
	e.Indexer.Stop()
}

// WaitIndexing blocks until the current indexing run finishes on its
// own, without requesting cancellation.
func (e *Engine) WaitIndexing() {
	e.Indexer.Wait()
}

// IsIndexing reports whether an indexing run is currently in flight.
func (e *Engine) IsIndexing() bool {
	return e.Indexer.IsIndexing()
}

// Search runs a plain substring/prefix search over indexed file names.
func (e *Engine) Search(query string, limit int, includeFolders bool) ([]index.Entry, error) {
	return e.Index.Search(query, limit, includeFolders)
}

// SearchWithFilters runs a conjunctive search across query text, a CSV
// extension allow-list, a path prefix, and synced/cloud-only flags.
func (e *Engine) SearchWithFilters(query, extensionCSV, pathPrefix string, syncedOnly, cloudOnly bool, limit int) ([]index.Entry, error) {
	return e.Index.SearchWithFilters(query, extensionCSV, pathPrefix, syncedOnly, cloudOnly, limit)
}

// DirectoryContents lists the immediate children of path.
func (e *Engine) DirectoryContents(path string) ([]index.Entry, error) {
	return e.Index.GetDirectoryContents(path)
}

// RecentFiles returns non-directory entries ordered by modification time,
// most recent first.
func (e *Engine) RecentFiles(limit int) ([]index.Entry, error) {
	return e.Index.GetRecentFiles(limit)
}

// Stats reports aggregate index counters for a status display.
func (e *Engine) Stats() (index.Stats, error) {
	return e.Index.GetStats()
}

// UpdateSyncStatus records whether remotePath's local copy is fully
// synced, and the local path it materialized to (empty if cloud-only).
func (e *Engine) UpdateSyncStatus(remotePath string, isSynced bool, localPath string) error {
	return e.Index.UpdateSyncStatus(remotePath, isSynced, localPath)
}

// ResetSession clears cumulative bandwidth counters and transfer
// history without touching the persisted index.
func (e *Engine) ResetSession() {
	e.Bandwidth.ResetSession()
}

// SetThrottle sets the informational upload/download rate limits; either
// may be -1 to leave that direction unchanged, 0 meaning unlimited.
func (e *Engine) SetThrottle(uploadBPS, downloadBPS int64) {
	if uploadBPS >= 0 {
		e.Bandwidth.SetUploadLimit(uploadBPS)
	}
	if downloadBPS >= 0 {
		e.Bandwidth.SetDownloadLimit(downloadBPS)
	}
}

// BeginTransfer starts tracking a new upload or download and returns a
// freshly minted transfer ID for subsequent UpdateTransfer/CompleteTransfer
// calls.
func (e *Engine) BeginTransfer(filename string, typ bandwidth.TransferType, totalBytes int64) string {
	id := uuid.NewString()
	e.Bandwidth.StartTransfer(id, filename, typ, totalBytes)
	return id
}

// UpdateTransfer reports incremental progress for an in-flight transfer.
func (e *Engine) UpdateTransfer(id string, bytesTransferred int64) {
	e.Bandwidth.UpdateProgress(id, bytesTransferred)
}

// CompleteTransfer finalizes a transfer, moving it into the completed
// history and, on failure, recording errMsg.
func (e *Engine) CompleteTransfer(id string, success bool, errMsg string) {
	e.Bandwidth.CompleteTransfer(id, success, errMsg)
}

// WatchJobID mints a new job identifier for a sync root the host wants
// the watcher to track.
func (e *Engine) WatchJobID() string {
	return uuid.NewString()
}

// OnSyncNeeded registers the callback fired when the watcher's debounce
// window elapses for a job with pending filesystem activity.
func (e *Engine) OnSyncNeeded(callback func(jobID string)) {
	e.Watcher.OnSync(callback)
}

// AddSyncRoot starts recursively watching root under jobID.
func (e *Engine) AddSyncRoot(jobID, root string) error {
	if err := e.Watcher.AddWatch(jobID, root); err != nil {
		return fmt.Errorf("engine: add sync root: %w", err)
	}
	return nil
}

// RemoveSyncRoot stops watching the directory tree registered under jobID.
func (e *Engine) RemoveSyncRoot(jobID string) {
	e.Watcher.RemoveWatch(jobID)
}

// StartWatching brings the filesystem watcher's event loop up; it is
// idempotent.
func (e *Engine) StartWatching(ctx context.Context) {
	e.Watcher.Start(ctx)
}

// IsWatching reports whether the filesystem watcher's event loop is
// currently running.
func (e *Engine) IsWatching() bool {
	return e.Watcher.IsRunning()
}

// WatchedJobs returns the identifiers of every sync root currently
// registered with the watcher.
func (e *Engine) WatchedJobs() []string {
	return e.Watcher.JobIDs()
}

// OnNetworkChange registers the callback fired when connectivity or
// metered state changes.
func (e *Engine) OnNetworkChange(callback func(network.Status)) {
	e.Network.OnChange(callback)
}

// NetworkStatus returns the most recently observed connectivity state.
func (e *Engine) NetworkStatus() network.Status {
	return e.Network.Current()
}
