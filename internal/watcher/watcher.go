// Package watcher implements a recursive filesystem watcher that
// translates per-file kernel-notify events into per-job sync intents
// under a debounce discipline.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/untoldecay/drivesync/internal/logging"
)

const (
	debounceTick          = 500 * time.Millisecond
	defaultDebounceWindow = 3 * time.Second

	// defaultPollInterval is the re-scan period used once a job (or the
	// whole watcher) has fallen back to polling.
	defaultPollInterval = 5 * time.Second

	// fallbackEnvVar disables the polling escape hatch when set to
	// "false" or "0", so an operator can demand a hard failure instead
	// of a silent degrade to polling on inotify exhaustion.
	fallbackEnvVar = "DRIVESYNC_WATCHER_FALLBACK"
)

var reconnectBackoff = []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

var errRootWatchFailed = errors.New("watcher: root watch failed")

func fallbackDisabled() bool {
	v := os.Getenv(fallbackEnvVar)
	return v == "false" || v == "0"
}

// treeSnapshot is a cheap fingerprint of a directory tree's contents, used
// by polling-mode jobs to detect changes without a kernel notify channel.
type treeSnapshot struct {
	latestMod time.Time
	fileCount int
}

func (s treeSnapshot) equal(o treeSnapshot) bool {
	return s.fileCount == o.fileCount && s.latestMod.Equal(o.latestMod)
}

// walkSnapshot walks root (skipping hidden entries, same as AddWatch) and
// returns the most recent modification time and file count seen.
func walkSnapshot(root string) (treeSnapshot, error) {
	var snap treeSnapshot
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			snap.fileCount++
		}
		if info.ModTime().After(snap.latestMod) {
			snap.latestMod = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return treeSnapshot{}, err
	}
	return snap, nil
}

// jobWatch tracks one job's watched root and the directories currently
// registered under it. polled jobs carry no directory watches at all;
// their root is instead re-scanned from pollLoop.
type jobWatch struct {
	root     string
	dirs     map[string]struct{}
	polled   bool
	snapshot treeSnapshot
}

// Watcher owns one fsnotify.Watcher (none in polling mode), its worker
// goroutines (the debouncer, plus the reader, the poller, or both), and the
// job registrations driving them.
type Watcher struct {
	debounceWindow time.Duration
	logger         *logging.Logger

	fsw *fsnotify.Watcher

	mu   sync.Mutex
	jobs map[string]*jobWatch
	// dirJob maps a watched directory back to its owning job id, so events
	// on that directory can be routed without scanning every job.
	dirJob map[string]string

	pendingMu sync.Mutex
	pending   map[string]time.Time

	callback func(jobID string)

	running atomic.Bool
	cancel  context.CancelFunc
	ctx     context.Context
	wg      sync.WaitGroup

	// pollingMode is true when no fsnotify.Watcher could be constructed at
	// all, so every job is watched by re-scanning instead of by descriptor.
	pollingMode  bool
	pollInterval time.Duration
	pollStart    sync.Once
}

// New constructs a Watcher with the given debounce window (0 selects the
// default of 3s). logger may be nil.
//
// If the platform's inotify instance can't be created (limit exhausted, no
// kernel support), New does not fail outright: unless fallbackEnvVar is set
// to disable it, the Watcher falls back to periodically re-scanning watched
// trees instead of relying on kernel notifications.
func New(debounceWindow time.Duration, logger *logging.Logger) (*Watcher, error) {
	if debounceWindow <= 0 {
		debounceWindow = defaultDebounceWindow
	}
	if logger == nil {
		logger = logging.Nop()
	}
	w := &Watcher{
		debounceWindow: debounceWindow,
		logger:         logger,
		jobs:           make(map[string]*jobWatch),
		dirJob:         make(map[string]string),
		pending:        make(map[string]time.Time),
		pollInterval:   defaultPollInterval,
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		if fallbackDisabled() {
			return nil, err
		}
		logger.Warn("watcher: inotify unavailable (%v), falling back to polling mode (%v interval)", err, w.pollInterval)
		w.pollingMode = true
		return w, nil
	}
	w.fsw = fsw
	return w, nil
}

// OnSync registers the single sync-callback invoked (from the debouncer
// goroutine) when a job's pending window elapses. Must be set before
// Start.
func (w *Watcher) OnSync(callback func(jobID string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callback = callback
}

// IsRunning reports whether the watcher's event loop is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// JobIDs returns the identifiers of every currently registered watch job.
func (w *Watcher) JobIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.jobs))
	for id := range w.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Start launches the debouncer goroutine plus either the inotify reader or
// the fallback poller, depending on which mode the watcher ended up in.
func (w *Watcher) Start(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.ctx = loopCtx

	w.wg.Add(1)
	go w.debounceLoop(loopCtx)

	if w.pollingMode {
		w.ensurePollLoop()
	} else {
		w.wg.Add(1)
		go w.readLoop(loopCtx)
	}

	// AddWatch can fall a job back to polling before Start is ever called
	// (its root watch failed immediately); pick that up here too.
	w.mu.Lock()
	needsPoll := false
	for _, jw := range w.jobs {
		if jw.polled {
			needsPoll = true
			break
		}
	}
	w.mu.Unlock()
	if needsPoll {
		w.ensurePollLoop()
	}
}

// Stop removes all descriptors, cancels every worker, and joins them.
func (w *Watcher) Stop() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

// ensurePollLoop lazily starts the poll goroutine on first need, whether
// the watcher began in global polling mode or a single job fell back to
// polling after exhausting its reconnect attempts. Safe to call more than
// once; only the first call spawns the goroutine.
func (w *Watcher) ensurePollLoop() {
	w.pollStart.Do(func() {
		w.wg.Add(1)
		go w.pollLoop(w.ctx)
	})
}

// AddWatch removes any prior registration for jobID, then walks root
// recursively, skipping hidden entries, allocating a watch per directory.
// A missing root is a silent success (no-op). Permission-denied subtrees
// are skipped; the parent stays watched.
func (w *Watcher) AddWatch(jobID, root string) error {
	w.RemoveWatch(jobID)

	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	if w.pollingMode {
		return w.addWatchPolling(jobID, root)
	}

	jw := &jobWatch{root: root, dirs: make(map[string]struct{})}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				w.logger.Debug("watcher: permission denied on %s, skipping subtree", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if watchErr := w.fsw.Add(path); watchErr != nil {
			if path == root {
				return errRootWatchFailed
			}
			w.logger.Warn("watcher: add watch on %s failed: %v", path, watchErr)
			return nil
		}
		jw.dirs[path] = struct{}{}
		w.mu.Lock()
		w.dirJob[path] = jobID
		w.mu.Unlock()
		return nil
	})
	if err != nil {
		if errors.Is(err, errRootWatchFailed) {
			w.logger.Warn("watcher: add watch on root %s failed, falling back to polling for this job", root)
			return w.addWatchPolling(jobID, root)
		}
		return err
	}

	w.mu.Lock()
	w.jobs[jobID] = jw
	w.mu.Unlock()
	return nil
}

// addWatchPolling registers jobID as a polled job: no fsnotify descriptor
// is allocated, and its root is instead re-scanned from pollLoop.
func (w *Watcher) addWatchPolling(jobID, root string) error {
	snap, err := walkSnapshot(root)
	if err != nil {
		return err
	}
	jw := &jobWatch{root: root, dirs: make(map[string]struct{}), polled: true, snapshot: snap}

	w.mu.Lock()
	w.jobs[jobID] = jw
	w.mu.Unlock()

	if w.running.Load() {
		w.ensurePollLoop()
	}
	return nil
}

// RemoveWatch cancels all descriptors for jobID and drops any pending sync
// for it.
func (w *Watcher) RemoveWatch(jobID string) {
	w.mu.Lock()
	jw, ok := w.jobs[jobID]
	if ok {
		delete(w.jobs, jobID)
		for dir := range jw.dirs {
			delete(w.dirJob, dir)
			_ = w.fsw.Remove(dir)
		}
	}
	w.mu.Unlock()

	w.pendingMu.Lock()
	delete(w.pending, jobID)
	w.pendingMu.Unlock()
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "."
}

// isTemporary filters out editor temporaries by name heuristic: hidden
// prefix, or substrings .swp, .tmp, ~, .part.
func isTemporary(name string) bool {
	if isHidden(name) {
		return true
	}
	for _, marker := range []string{".swp", ".tmp", "~", ".part"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

func (w *Watcher) readLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	watchedJobID, isWatchedDir := w.dirJob[event.Name]
	w.mu.Unlock()
	if isWatchedDir && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
		go w.reestablish(watchedJobID, event.Name)
		return
	}

	name := filepath.Base(event.Name)
	if isTemporary(name) {
		return
	}

	w.mu.Lock()
	dir := filepath.Dir(event.Name)
	jobID, ok := w.dirJob[dir]
	w.mu.Unlock()
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchNewSubdir(jobID, event.Name)
		}
	}

	w.scheduleSync(jobID)
}

// reestablish retries adding a lost watch (directory remounted, briefly
// unmounted, or moved and moved back) with the standard reconnect backoff.
// If every attempt fails, the owning job falls back to polling rather than
// going dark.
func (w *Watcher) reestablish(jobID, path string) {
	for _, delay := range reconnectBackoff {
		time.Sleep(delay)
		if !w.running.Load() {
			return
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := w.fsw.Add(path); err == nil {
			w.logger.Info("watcher: reattached lost watch on %s", path)
			return
		}
	}
	if !w.running.Load() {
		return
	}
	w.logger.Warn("watcher: gave up reattaching watch on %s, falling back to polling for job %s", path, jobID)
	w.fallBackJobToPolling(jobID)
}

// fallBackJobToPolling drops jobID's remaining directory descriptors and
// marks it as polled, starting the poll loop if this is the first job to
// need it.
func (w *Watcher) fallBackJobToPolling(jobID string) {
	w.mu.Lock()
	jw, ok := w.jobs[jobID]
	if ok {
		for dir := range jw.dirs {
			delete(w.dirJob, dir)
			_ = w.fsw.Remove(dir)
		}
		jw.dirs = make(map[string]struct{})
		jw.polled = true
		if snap, err := walkSnapshot(jw.root); err == nil {
			jw.snapshot = snap
		}
	}
	w.mu.Unlock()
	if !ok || !w.running.Load() {
		return
	}
	w.ensurePollLoop()
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

// pollOnce re-scans every polled job's root and schedules a sync for any
// whose fingerprint changed since the last scan.
func (w *Watcher) pollOnce() {
	w.mu.Lock()
	jobs := make(map[string]*jobWatch, len(w.jobs))
	for id, jw := range w.jobs {
		if jw.polled {
			jobs[id] = jw
		}
	}
	w.mu.Unlock()

	for jobID, jw := range jobs {
		snap, err := walkSnapshot(jw.root)
		if err != nil {
			w.logger.Debug("watcher: poll scan of %s failed: %v", jw.root, err)
			continue
		}

		w.mu.Lock()
		changed := !snap.equal(jw.snapshot)
		if changed {
			jw.snapshot = snap
		}
		w.mu.Unlock()

		if changed {
			w.scheduleSync(jobID)
		}
	}
}

func (w *Watcher) watchNewSubdir(jobID, path string) {
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("watcher: add watch on new subdir %s failed: %v", path, err)
		return
	}
	w.mu.Lock()
	if jw, ok := w.jobs[jobID]; ok {
		jw.dirs[path] = struct{}{}
	}
	w.dirJob[path] = jobID
	w.mu.Unlock()
}

func (w *Watcher) scheduleSync(jobID string) {
	w.pendingMu.Lock()
	w.pending[jobID] = time.Now()
	w.pendingMu.Unlock()
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.promoteReady()
		}
	}
}

func (w *Watcher) promoteReady() {
	now := time.Now()
	var ready []string

	w.pendingMu.Lock()
	for jobID, last := range w.pending {
		if now.Sub(last) >= w.debounceWindow {
			ready = append(ready, jobID)
		}
	}
	for _, jobID := range ready {
		delete(w.pending, jobID)
	}
	w.pendingMu.Unlock()

	w.mu.Lock()
	callback := w.callback
	w.mu.Unlock()

	if callback == nil {
		return
	}
	for _, jobID := range ready {
		callback(jobID)
	}
}
