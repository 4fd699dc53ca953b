package bandwidth

import (
	"testing"
	"time"
)

func TestFormatSpeed(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0 B/s"},
		{512, "512 B/s"},
		{1024, "1.0 KB/s"},
		{1536, "1.5 KB/s"},
		{1024 * 1024, "1.0 MB/s"},
		{1024 * 1024 * 1024, "1.0 GB/s"},
	}
	for _, c := range cases {
		if got := FormatSpeed(c.in); got != c.want {
			t.Errorf("FormatSpeed(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSpeedZeroWithFewerThanTwoSamples(t *testing.T) {
	m := New(nil)
	m.StartTransfer("t1", "file.bin", Upload, 1000)
	if got := m.CurrentUploadSpeed(); got != 0 {
		t.Errorf("expected zero speed with no samples, got %v", got)
	}
	m.UpdateProgress("t1", 100)
	if got := m.CurrentUploadSpeed(); got != 0 {
		t.Errorf("expected zero speed with one sample, got %v", got)
	}
}

func TestSpeedNonNegative(t *testing.T) {
	m := New(nil)
	m.StartTransfer("t1", "file.bin", Download, 1000)
	m.UpdateProgress("t1", 100)
	time.Sleep(2 * time.Millisecond)
	m.UpdateProgress("t1", 200)
	if got := m.CurrentDownloadSpeed(); got < 0 {
		t.Errorf("speed must be nonnegative, got %v", got)
	}
}

func TestCompletedHistoryBoundedFIFO(t *testing.T) {
	m := New(nil)
	for i := 0; i < maxHistory+20; i++ {
		id := string(rune('a' + i%26))
		m.StartTransfer(id, "file", Upload, 10)
		m.CompleteTransfer(id, true, "")
	}
	recent := m.RecentTransfers(1000)
	if len(recent) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(recent), maxHistory)
	}
	// The 20 oldest are evicted: the newest kept is i=119 ('a'+119%26 = 'p'),
	// the oldest kept is i=20 ('a'+20%26 = 'u').
	if recent[0].ID != "p" || recent[maxHistory-1].ID != "u" {
		t.Errorf("newest/oldest kept = %q/%q, want %q/%q", recent[0].ID, recent[maxHistory-1].ID, "p", "u")
	}
}

func TestSessionStatsUpdateOnSuccessOnly(t *testing.T) {
	m := New(nil)

	m.StartTransfer("ok", "a.bin", Upload, 100)
	m.CompleteTransfer("ok", true, "")

	m.StartTransfer("bad", "b.bin", Upload, 50)
	m.CompleteTransfer("bad", false, "network error")

	stats := m.SessionStats()
	if stats.TotalUploaded != 100 {
		t.Errorf("TotalUploaded = %d, want 100", stats.TotalUploaded)
	}
	if stats.FilesUploaded != 1 {
		t.Errorf("FilesUploaded = %d, want 1", stats.FilesUploaded)
	}
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
}

func TestResetSessionClearsEverything(t *testing.T) {
	m := New(nil)
	m.StartTransfer("t1", "a.bin", Upload, 100)
	m.CompleteTransfer("t1", true, "")

	m.ResetSession()

	stats := m.SessionStats()
	if stats.TotalUploaded != 0 || stats.FilesUploaded != 0 {
		t.Error("expected zeroed stats after ResetSession")
	}
	if len(m.RecentTransfers(10)) != 0 {
		t.Error("expected empty history after ResetSession")
	}
}

func TestThrottleLimitsAreInformationalOnly(t *testing.T) {
	m := New(nil)
	m.SetUploadLimit(1000)
	m.SetDownloadLimit(2000)

	if m.UploadLimit() != 1000 {
		t.Errorf("UploadLimit = %d, want 1000", m.UploadLimit())
	}
	if m.DownloadLimit() != 2000 {
		t.Errorf("DownloadLimit = %d, want 2000", m.DownloadLimit())
	}

	// Nothing in Monitor enforces these; UpdateProgress must not be
	// throttled or rejected regardless of the configured limit.
	m.StartTransfer("t1", "big.bin", Upload, 10_000_000)
	m.UpdateProgress("t1", 5_000_000)
	m.CompleteTransfer("t1", true, "")

	stats := m.SessionStats()
	if stats.TotalUploaded != 10_000_000 {
		t.Errorf("throttle limit should not affect completion accounting, got %d", stats.TotalUploaded)
	}
}

func TestUnknownTransferIDsAreIgnored(t *testing.T) {
	m := New(nil)
	m.UpdateProgress("never-started", 100)
	m.CompleteTransfer("never-started", true, "")
	if len(m.RecentTransfers(10)) != 0 {
		t.Error("operations on unknown ids must not create history entries")
	}
}
