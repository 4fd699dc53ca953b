package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/untoldecay/drivesync/internal/index"
)

// fakeStore is an in-memory Store implementation for exercising Indexer
// without a real sqlite file.
type fakeStore struct {
	mu      sync.Mutex
	entries []index.Entry
	cleared bool
	stamped bool
	status  string
	percent int
	indexing bool
}

func (f *fakeStore) InsertFilesBatch(rows []index.Entry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, rows...)
	return len(rows), nil
}

func (f *fakeStore) UpdateIndexingProgress(indexing bool, percent int, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexing = indexing
	f.percent = percent
	f.status = status
}

func (f *fakeStore) UpdateLastFullIndexTime() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamped = true
	return nil
}

func (f *fakeStore) ClearIndex() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.entries = nil
	f.stamped = false
	return nil
}

func (f *fakeStore) snapshot() (int, bool, bool, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), f.cleared, f.stamped, f.status, f.percent
}

func writeFakeLister(t *testing.T, n int, sleepPerRecord time.Duration) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, listerBinaryName)

	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("echo '['\n")
	for i := 0; i < n; i++ {
		sep := ","
		if i == n-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "echo '{\"Path\":\"file%d.txt\",\"Name\":\"file%d.txt\",\"Size\":%d,\"ModTime\":\"2026-01-01T00:00:00.000000000Z\",\"IsDir\":false}%s'\n", i, i, i, sep)
		if sleepPerRecord > 0 {
			fmt.Fprintf(&b, "sleep %f\n", sleepPerRecord.Seconds())
		}
	}
	b.WriteString("echo ']'\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestIndexerRunsOneThousandRecords(t *testing.T) {
	listerPath := writeFakeLister(t, 1000, 0)
	store := &fakeStore{}
	ix := New(store, "drive", listerPath, "", nil)

	if err := ix.Start(context.Background(), false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForIdle(t, ix)

	n, cleared, stamped, status, percent := store.snapshot()
	if n != 1000 {
		t.Errorf("entries = %d, want 1000", n)
	}
	if cleared {
		t.Error("did not request a full reindex, should not have cleared")
	}
	if !stamped {
		t.Error("expected last_full_index to be stamped")
	}
	if percent != 100 {
		t.Errorf("final percent = %d, want 100", percent)
	}
	_ = status
}

func TestIndexerFullReindexClearsFirst(t *testing.T) {
	listerPath := writeFakeLister(t, 5, 0)
	store := &fakeStore{}
	ix := New(store, "drive", listerPath, "", nil)

	if err := ix.Start(context.Background(), true); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForIdle(t, ix)

	_, cleared, _, _, _ := store.snapshot()
	if !cleared {
		t.Error("expected ClearIndex to have been called for a full reindex")
	}
}

func TestIndexerRejectsConcurrentStart(t *testing.T) {
	listerPath := writeFakeLister(t, 50, 5*time.Millisecond)
	store := &fakeStore{}
	ix := New(store, "drive", listerPath, "", nil)

	if err := ix.Start(context.Background(), false); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := ix.Start(context.Background(), false); err != ErrAlreadyIndexing {
		t.Errorf("second Start error = %v, want ErrAlreadyIndexing", err)
	}
	ix.Stop()
}

func TestIndexerCancellationFlushesPartialBatch(t *testing.T) {
	listerPath := writeFakeLister(t, 2000, 1*time.Millisecond)
	store := &fakeStore{}
	ix := New(store, "drive", listerPath, "", nil)

	if err := ix.Start(context.Background(), false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	ix.Stop()

	n, _, stamped, _, _ := store.snapshot()
	if n == 0 {
		t.Error("expected at least one flushed batch before cancellation")
	}
	if n >= 2000 {
		t.Error("expected cancellation to cut the run short")
	}
	if stamped {
		t.Error("cancelled run must not stamp last_full_index")
	}
}

func TestIndexerZeroEntriesReportsErrorWithoutStamping(t *testing.T) {
	listerPath := writeFakeLister(t, 0, 0)
	store := &fakeStore{}
	ix := New(store, "drive", listerPath, "", nil)

	if err := ix.Start(context.Background(), false); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForIdle(t, ix)

	_, _, stamped, status, _ := store.snapshot()
	if stamped {
		t.Error("expected last_full_index to remain unstamped on zero entries")
	}
	if !strings.Contains(status, "No files") {
		t.Errorf("status = %q, want it to mention no files", status)
	}
}

func waitForIdle(t *testing.T, ix *Indexer) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if !ix.IsIndexing() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("indexer did not finish within the deadline")
}
