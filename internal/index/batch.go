package index

import (
	"fmt"
	"strings"
)

const maxVerboseRowErrors = 3

// InsertFilesBatch upserts rows by path inside a single transaction.
// Per-row failures are counted and logged (first three verbosely) but do
// not abort the batch; the whole batch commits atomically. Returns the
// number of rows successfully written, and an error only if the store is
// not initialized or the transaction could not be begun, prepared, or
// committed, in which case no rows from this call are visible.
func (s *Store) InsertFilesBatch(rows []Entry) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin batch transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO files (name, path, parent_path, size, mod_time, is_directory, is_synced, local_path, extension, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			parent_path = excluded.parent_path,
			size = excluded.size,
			mod_time = excluded.mod_time,
			is_directory = excluded.is_directory,
			local_path = excluded.local_path,
			extension = excluded.extension,
			indexed_at = excluded.indexed_at
	`)
	if err != nil {
		return 0, fmt.Errorf("index: prepare batch insert: %w", err)
	}
	defer stmt.Close()

	saved := 0
	failed := 0
	for _, row := range rows {
		isDir := 0
		if row.IsDirectory {
			isDir = 1
		}
		isSynced := 0
		if row.IsSynced {
			isSynced = 1
		}
		if _, err := stmt.Exec(row.Name, row.Path, row.ParentPath, row.Size, row.ModTime, isDir, isSynced, row.LocalPath, row.Extension, row.IndexedAt); err != nil {
			failed++
			if failed <= maxVerboseRowErrors {
				s.logger.Warn("index: batch row failed for %s: %v", row.Path, err)
			}
			continue
		}
		saved++
	}
	if failed > maxVerboseRowErrors {
		s.logger.Warn("index: %d additional batch rows failed (suppressed)", failed-maxVerboseRowErrors)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit batch: %w", err)
	}
	committed = true
	return saved, nil
}

// UpdateSyncStatus updates a single row's is_synced/local_path by path.
func (s *Store) UpdateSyncStatus(remotePath string, isSynced bool, localPath string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	synced := 0
	if isSynced {
		synced = 1
	}
	_, err = db.Exec(`UPDATE files SET is_synced = ?, local_path = ? WHERE path = ?`, synced, localPath, remotePath)
	if err != nil {
		return fmt.Errorf("index: update sync status for %s: %w", remotePath, err)
	}
	return nil
}

// PruneStaleEntries deletes every row under parentPath whose path is not
// in pathsSeen, together with all descendants (paths sharing the prefix
// entry.path + "/"). Used after a directory listing to remove entries the
// remote no longer reports. Returns the total number of rows deleted,
// descendants included.
func (s *Store) PruneStaleEntries(parentPath string, pathsSeen []string) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(pathsSeen))
	for _, p := range pathsSeen {
		seen[p] = struct{}{}
	}

	rows, err := db.Query(`SELECT path FROM files WHERE parent_path = ?`, parentPath)
	if err != nil {
		return 0, fmt.Errorf("index: prune query: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("index: prune scan: %w", err)
		}
		if _, ok := seen[path]; !ok {
			stale = append(stale, path)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin prune transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var total int64
	for _, path := range stale {
		res, err := tx.Exec(`DELETE FROM files WHERE path = ? OR path LIKE ? ESCAPE '\'`, path, escapeLike(path)+"/%")
		if err != nil {
			return total, fmt.Errorf("index: prune delete %s: %w", path, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return total, fmt.Errorf("index: commit prune: %w", err)
	}
	committed = true
	return total, nil
}

// ClearIndex deletes all entries and clears the last_full_index stamp.
func (s *Store) ClearIndex() error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.Exec(`DELETE FROM files`); err != nil {
		return fmt.Errorf("index: clear index: %w", err)
	}
	return s.setMeta("last_full_index", "")
}

// ParentPathOf computes parent_path for a full remote path: the prefix up
// to (but not including) the last "/", or remoteRootSentinel for a
// top-level entry directly under the remote root. See SPEC_FULL.md §9 for the
// trailing-slash convention decision.
func ParentPathOf(path, remoteRootSentinel string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return remoteRootSentinel
	}
	parent := path[:idx+1]
	if parent == remoteRootSentinel || strings.TrimSuffix(parent, "/") == strings.TrimSuffix(remoteRootSentinel, "/") {
		return remoteRootSentinel
	}
	return strings.TrimSuffix(parent, "/")
}
