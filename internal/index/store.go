// Package index implements the encrypted, searchable local index of the
// remote file tree. The database file is transparently decrypted at
// Initialize and re-encrypted at Shutdown, keyed by a machine-bound
// wrapping key persisted in a keyfile alongside it.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/drivesync/internal/cryptutil"
	"github.com/untoldecay/drivesync/internal/logging"
)

// Entry is one row of the indexed remote file tree.
type Entry struct {
	ID          int64
	Name        string
	Path        string
	ParentPath  string
	Size        int64
	ModTime     string
	IsDirectory bool
	IsSynced    bool
	LocalPath   string
	Extension   string
	IndexedAt   string
}

// Stats is a point-in-time snapshot returned by GetStats.
type Stats struct {
	TotalFiles        int64
	TotalFolders      int64
	TotalBytes        int64
	LastFullIndex     string
	LastPartialIndex  string
	IsIndexing        bool
	IndexingProgress  int
	IndexingStatus    string
}

// Store is the encrypted index store. The zero value is not usable;
// construct with New.
type Store struct {
	dbPath   string
	key      []byte
	fileMode os.FileMode

	mu              sync.RWMutex
	db              *sql.DB
	ftsEnabled      bool
	forceDisableFTS bool

	logger *logging.Logger

	progressMu sync.Mutex
	progress   Stats

	stopIndexing func() // set by the indexer package via SetIndexingStopper
}

// New constructs a Store bound to dbPath, encrypted under key (KeySize
// bytes). It does not touch disk until Initialize is called.
func New(dbPath string, key []byte, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		dbPath:   dbPath,
		key:      key,
		fileMode: 0o600,
		logger:   logger,
	}
}

// Initialize ensures the cache directory exists, decrypts the database
// file in place if it is currently encrypted, opens it, and creates the
// schema if absent. A corrupted (undecryptable) database is renamed aside
// with a ".corrupted.<epoch>" suffix and startup continues with an empty
// database, per §7.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return ErrAlreadyInitialized
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o700); err != nil {
		return fmt.Errorf("index: create cache dir: %w", err)
	}

	if cryptutil.IsEncryptedFile(s.dbPath) {
		if err := cryptutil.DecryptFile(s.dbPath, s.key, s.fileMode); err != nil {
			s.logger.Error("index: decrypt failed, quarantining database: %v", err)
			if qerr := s.quarantine(); qerr != nil {
				return fmt.Errorf("index: quarantine corrupted database: %w", qerr)
			}
		}
	}

	db, err := sql.Open("sqlite3", s.dbPath)
	if err != nil {
		return fmt.Errorf("index: open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return fmt.Errorf("index: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return fmt.Errorf("index: enable foreign keys: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}
	s.ftsEnabled = createFTS(db) && !s.ftsDisabledOverride()

	if err := os.Chmod(s.dbPath, s.fileMode); err != nil {
		s.logger.Warn("index: chmod database: %v", err)
	}

	s.db = db
	s.logger.Info("index: initialized at %s (fts=%v)", s.dbPath, s.ftsEnabled)
	return nil
}

// ftsDisabledOverride reports whether SetFTSOverride forced the
// LIKE-fallback path regardless of FTS5 availability.
func (s *Store) ftsDisabledOverride() bool {
	return s.forceDisableFTS
}

// SetFTSOverride forces the store onto its substring-search fallback path
// even when FTS5 is available, per SPEC_FULL.md's DisableFTS config knob.
// Must be called before Initialize.
func (s *Store) SetFTSOverride(disable bool) {
	s.forceDisableFTS = disable
}

func (s *Store) quarantine() error {
	epoch := time.Now().Unix()
	dest := fmt.Sprintf("%s.corrupted.%d", s.dbPath, epoch)
	if err := os.Rename(s.dbPath, dest); err != nil {
		return err
	}
	s.logger.Warn("index: quarantined corrupted database to %s", dest)
	return nil
}

// Shutdown is idempotent: it stops any in-flight indexing, checkpoints and
// truncates the WAL, closes the handle, then encrypts the resulting file in
// place with the in-memory key. Calling Shutdown on an uninitialized or
// already-shut-down Store is a no-op success.
func (s *Store) Shutdown() error {
	// The indexer's final flush goes through conn(), so it must be stopped
	// before the write lock below is taken.
	s.mu.RLock()
	stop := s.stopIndexing
	open := s.db != nil
	s.mu.RUnlock()
	if open && stop != nil {
		stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn("index: wal checkpoint: %v", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close database: %w", err)
	}
	s.db = nil

	if err := cryptutil.EncryptFile(s.dbPath, s.key, s.fileMode); err != nil {
		return fmt.Errorf("index: encrypt database on shutdown: %w", err)
	}
	s.logger.Info("index: shut down and encrypted %s", s.dbPath)
	return nil
}

// SetIndexingStopper registers a callback invoked by Shutdown to stop any
// in-flight background indexing before closing the database handle.
func (s *Store) SetIndexingStopper(stop func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopIndexing = stop
}

// conn returns the live *sql.DB or ErrNotInitialized.
func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// GetStats returns live counts, total byte sum, last-index stamps, and the
// current indexer progress snapshot.
func (s *Store) GetStats() (Stats, error) {
	db, err := s.conn()
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	row := db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN is_directory = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_directory = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_directory = 0 AND size > 0 THEN size ELSE 0 END), 0)
		FROM files`)
	if err := row.Scan(&stats.TotalFiles, &stats.TotalFolders, &stats.TotalBytes); err != nil {
		return Stats{}, fmt.Errorf("index: get stats: %w", err)
	}

	stats.LastFullIndex, _ = s.getMeta(db, "last_full_index")
	stats.LastPartialIndex, _ = s.getMeta(db, "last_partial_index")

	s.progressMu.Lock()
	stats.IsIndexing = s.progress.IsIndexing
	stats.IndexingProgress = s.progress.IndexingProgress
	stats.IndexingStatus = s.progress.IndexingStatus
	s.progressMu.Unlock()

	return stats, nil
}

func (s *Store) getMeta(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *Store) setMeta(key, value string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// UpdateIndexingProgress is called by the background indexer to publish a
// progress snapshot that GetStats surfaces to the host.
func (s *Store) UpdateIndexingProgress(indexing bool, percent int, status string) {
	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	s.progress.IsIndexing = indexing
	s.progress.IndexingProgress = percent
	s.progress.IndexingStatus = status
}

// UpdateLastFullIndexTime stamps index_meta.last_full_index with now in
// ISO-8601 seconds precision.
func (s *Store) UpdateLastFullIndexTime() error {
	return s.setMeta("last_full_index", nowISO8601())
}

// nowISO8601 formats the current local time to seconds precision, matching
// the ISO-8601 convention used throughout the data model (§3).
func nowISO8601() string {
	return time.Now().Format("2006-01-02T15:04:05")
}

// ExtensionOf derives the lowercased extension (without leading dot) of
// name. Exported for callers outside this package (the indexer) that need
// the same convention when composing an Entry.
func ExtensionOf(name string) string {
	return extensionOf(name)
}

// extensionOf derives the lowercased extension (without leading dot) of
// name, per §3: empty if absent, if name ends with the dot, or if name
// starts with a dot (e.g. ".bashrc" and ".config.yaml" have no extension).
func extensionOf(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx <= 0 || idx == len(name)-1 || strings.HasPrefix(name, ".") {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
