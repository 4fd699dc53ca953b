package index

import (
	"database/sql"
	"fmt"
	"strings"
)

const entryColumns = `id, name, path, parent_path, size, mod_time, is_directory, is_synced, local_path, extension, indexed_at`

func scanEntry(row interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var isDir, isSynced int
	err := row.Scan(&e.ID, &e.Name, &e.Path, &e.ParentPath, &e.Size, &e.ModTime, &isDir, &isSynced, &e.LocalPath, &e.Extension, &e.IndexedAt)
	e.IsDirectory = isDir != 0
	e.IsSynced = isSynced != 0
	return e, err
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Search performs a full-text or substring search over name/path,
// optionally including directories. Ordering is by FTS relevance (BM25)
// when FTS5 is available, else by name ascending. A limit of 0 or negative
// means unlimited.
func (s *Store) Search(query string, limit int, includeFolders bool) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ftsEnabled := s.ftsEnabled
	s.mu.RUnlock()

	dirClause := ""
	if !includeFolders {
		dirClause = " AND f.is_directory = 0"
	}

	if ftsEnabled && query != "" {
		entries, err := s.searchFTS(db, query, limit, dirClause)
		if err == nil {
			return entries, nil
		}
		s.logger.Warn("index: fts search failed, falling back to substring search: %v", err)
	}
	return s.searchLike(db, query, limit, dirClause)
}

func (s *Store) searchFTS(db *sql.DB, query string, limit int, dirClause string) ([]Entry, error) {
	matchQuery := ftsPrefixQuery(query)
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM files f
		JOIN files_fts ON files_fts.rowid = f.id
		WHERE files_fts MATCH ?%s
		ORDER BY bm25(files_fts)
	`, qualifiedColumns("f"), dirClause)
	sqlStr = applyLimit(sqlStr, limit)

	rows, err := db.Query(sqlStr, matchQuery)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

// ftsPrefixQuery builds an FTS5 MATCH expression treating the query as a
// prefix match on each whitespace-separated token. A literal "*" in the
// query is passed through as FTS5's own prefix-wildcard syntax (see
// SPEC_FULL.md §9 Open Questions).
func ftsPrefixQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		escaped := strings.ReplaceAll(f, `"`, `""`)
		if strings.HasSuffix(escaped, "*") {
			fields[i] = fmt.Sprintf(`"%s"*`, strings.TrimSuffix(escaped, "*"))
		} else {
			fields[i] = fmt.Sprintf(`"%s"*`, escaped)
		}
	}
	return strings.Join(fields, " ")
}

func (s *Store) searchLike(db *sql.DB, query string, limit int, dirClause string) ([]Entry, error) {
	pattern := "%" + escapeLike(query) + "%"
	sqlStr := fmt.Sprintf(`
		SELECT %s FROM files f
		WHERE (f.name LIKE ? ESCAPE '\' OR f.path LIKE ? ESCAPE '\')%s
		ORDER BY f.name ASC
	`, qualifiedColumns("f"), dirClause)
	sqlStr = applyLimit(sqlStr, limit)

	rows, err := db.Query(sqlStr, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("index: substring search: %w", err)
	}
	return scanEntries(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func qualifiedColumns(alias string) string {
	cols := strings.Split(entryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func applyLimit(sqlStr string, limit int) string {
	if limit > 0 {
		return sqlStr + fmt.Sprintf(" LIMIT %d", limit)
	}
	return sqlStr
}

// SearchWithFilters applies conjunctive filters: extensionCSV is a
// comma-separated, whitespace-trimmed, case-folded extension allowlist;
// pathPrefix restricts to paths with that prefix; syncedOnly and cloudOnly
// are mutually exclusive — if both are set the result is the empty
// sequence. Ordering is by name ascending.
func (s *Store) SearchWithFilters(query, extensionCSV, pathPrefix string, syncedOnly, cloudOnly bool, limit int) ([]Entry, error) {
	if syncedOnly && cloudOnly {
		return nil, nil
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var clauses []string
	var args []any

	if query != "" {
		clauses = append(clauses, "(name LIKE ? ESCAPE '\\' OR path LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(query) + "%"
		args = append(args, pattern, pattern)
	}
	if extensionCSV != "" {
		exts := splitExtensionCSV(extensionCSV)
		if len(exts) > 0 {
			placeholders := strings.Repeat("?,", len(exts))
			placeholders = strings.TrimSuffix(placeholders, ",")
			clauses = append(clauses, fmt.Sprintf("extension IN (%s)", placeholders))
			for _, e := range exts {
				args = append(args, e)
			}
		}
	}
	if pathPrefix != "" {
		clauses = append(clauses, "path LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(pathPrefix)+"%")
	}
	if syncedOnly {
		clauses = append(clauses, "is_synced = 1")
	}
	if cloudOnly {
		clauses = append(clauses, "is_synced = 0")
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	sqlStr := fmt.Sprintf(`SELECT %s FROM files %s ORDER BY name ASC`, entryColumns, where)
	sqlStr = applyLimit(sqlStr, limit)

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search with filters: %w", err)
	}
	return scanEntries(rows)
}

func splitExtensionCSV(csv string) []string {
	parts := strings.Split(csv, ",")
	var out []string
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetDirectoryContents returns entries whose parent_path equals path,
// directories first then by name.
func (s *Store) GetDirectoryContents(path string) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	sqlStr := fmt.Sprintf(`SELECT %s FROM files WHERE parent_path = ? ORDER BY is_directory DESC, name ASC`, entryColumns)
	rows, err := db.Query(sqlStr, path)
	if err != nil {
		return nil, fmt.Errorf("index: get directory contents: %w", err)
	}
	return scanEntries(rows)
}

// GetRecentFiles returns files only (no directories), ordered by mod_time
// descending, up to limit.
func (s *Store) GetRecentFiles(limit int) ([]Entry, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	sqlStr := fmt.Sprintf(`SELECT %s FROM files WHERE is_directory = 0 ORDER BY mod_time DESC`, entryColumns)
	sqlStr = applyLimit(sqlStr, limit)
	rows, err := db.Query(sqlStr)
	if err != nil {
		return nil, fmt.Errorf("index: get recent files: %w", err)
	}
	return scanEntries(rows)
}
