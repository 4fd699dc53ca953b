package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// runCLI executes the root command with args against a throwaway
// DRIVESYNC_ home rooted at t.TempDir, returning combined stdout/stderr.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DRIVESYNC_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("DRIVESYNC_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("DRIVESYNC_SYNC_ROOT", filepath.Join(dir, "sync"))
	t.Setenv("DRIVESYNC_LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatsOnFreshIndex(t *testing.T) {
	out, err := runCLI(t, "stats")
	if err != nil {
		t.Fatalf("stats: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("files:")) {
		t.Errorf("expected stats output to mention file counts, got:\n%s", out)
	}
}

func TestSearchOnEmptyIndexReturnsNoResults(t *testing.T) {
	out, err := runCLI(t, "search", "nothing-will-match")
	if err != nil {
		t.Fatalf("search: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("0 result(s)")) {
		t.Errorf("expected zero results against an empty index, got:\n%s", out)
	}
}

func TestSearchRejectsConflictingFilters(t *testing.T) {
	_, err := runCLI(t, "search", "x", "--synced-only", "--cloud-only")
	if err == nil {
		t.Error("expected an error for mutually exclusive --synced-only/--cloud-only")
	}
}

func TestResetSessionSucceeds(t *testing.T) {
	out, err := runCLI(t, "reset-session")
	if err != nil {
		t.Fatalf("reset-session: %v\noutput:\n%s", err, out)
	}
	if !bytes.Contains([]byte(out), []byte("reset")) {
		t.Errorf("expected confirmation output, got:\n%s", out)
	}
}
