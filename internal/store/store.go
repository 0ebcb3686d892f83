package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the persistent, transactional cache of files, chunks, symbols,
// edges, and report versions. It is the single source of truth for what
// has actually been read and parsed.
type Store interface {
	// GetFileHash returns the stored hash for a path, or "" if not cached.
	GetFileHash(path string) (string, error)
	// UpsertFile replaces a file and all of its structural facts, including
	// its import references, in one transaction. Re-ingesting with an
	// unchanged hash is a no-op.
	UpsertFile(f FileRecord, chunks []Chunk, symbols []SymbolSpec, edges []EdgeSpec, imports []string) (int64, error)
	// RemoveFile deletes a file; chunks, symbols, and edges cascade.
	RemoveFile(path string) error
	// GetFile returns the record for a path, or nil if not cached.
	GetFile(path string) (*FileRecord, error)
	// GetFileByID returns the record for an ID, or nil if not cached.
	GetFileByID(id int64) (*FileRecord, error)
	// HasFile reports whether a path is cached.
	HasFile(path string) (bool, error)
	// ListFiles returns all cached files ordered by path, without content.
	ListFiles() ([]FileRecord, error)
	// ChunksForFile returns a file's chunks ordered by start line.
	ChunksForFile(fileID int64) ([]Chunk, error)
	// FindChunkCovering returns the smallest chunk containing [start, end],
	// or nil if none covers the range. Equal spans tie-break on chunk ID.
	FindChunkCovering(fileID int64, start, end int) (*Chunk, error)
	// SymbolsForFile returns a file's symbols ordered by start line.
	SymbolsForFile(fileID int64) ([]Symbol, error)
	// SymbolsByName returns symbols with the exact name, ordered by file path.
	SymbolsByName(name string) ([]Symbol, error)
	// SymbolsByIDs returns the symbols with the given IDs, in ID order.
	SymbolsByIDs(ids []int64) ([]Symbol, error)
	// SearchSymbols finds symbols whose name contains pattern, optionally
	// filtered by kind.
	SearchSymbols(pattern string, kinds []string, limit int) ([]Symbol, error)
	// SearchFTS runs full-text search over chunk text, bm25-ranked.
	SearchFTS(query string, limit int) ([]ChunkMatch, error)
	// SearchFiles runs full-text search over whole files and returns
	// line-level matches.
	SearchFiles(query string, limit int) ([]LineMatch, error)
	// EdgesForSymbols returns all edges touching any of the given symbols.
	EdgesForSymbols(symbolIDs []int64) ([]Edge, error)
	// ResolveImports links every file's module symbol to the module symbols
	// of its stored import references, where they exist. Idempotent; edges
	// lost when a target file was re-ingested are re-created. Returns the
	// number of edges added.
	ResolveImports() (int, error)
	// SaveReportVersion persists one iteration's report. Versions are
	// immutable once written.
	SaveReportVersion(v ReportVersion) (int64, error)
	// ListReportVersions returns all versions, oldest first, without content.
	ListReportVersions() ([]ReportVersion, error)
	// GetReportVersion returns a version with content, or nil if absent.
	GetReportVersion(id int64) (*ReportVersion, error)
	// LatestReportVersion returns the newest version, or nil when none exist.
	LatestReportVersion() (*ReportVersion, error)
	// GetMeta returns a metadata value by key, or "" if not set.
	GetMeta(key string) (string, error)
	// SetMeta sets a metadata key-value pair.
	SetMeta(key, value string) error
	// Close closes the underlying database.
	Close() error
}

// SymbolSpec is a symbol plus its parent addressed by index into the same
// slice (-1 for top-level). UpsertFile rewrites the index into a real ID.
type SymbolSpec struct {
	Symbol
	Parent int
}

// SQLiteStore implements Store backed by SQLite with FTS5.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and initializes
// the schema. WAL journaling, foreign-key enforcement, and NORMAL
// synchronous mode are applied via the DSN.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer; serialize at the pool level so
	// concurrent ingest workers queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow("SELECT hash FROM files WHERE path = ?", path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

func (s *SQLiteStore) UpsertFile(f FileRecord, chunks []Chunk, symbols []SymbolSpec, edges []EdgeSpec, imports []string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	var existingHash string
	err = tx.QueryRow("SELECT id, hash FROM files WHERE path = ?", f.Path).Scan(&existingID, &existingHash)
	switch {
	case err == nil:
		if existingHash == f.Hash {
			// Unchanged content: idempotent no-op.
			return existingID, nil
		}
		if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", existingID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec("DELETE FROM symbols WHERE file_id = ?", existingID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec("DELETE FROM file_imports WHERE file_id = ?", existingID); err != nil {
			return 0, err
		}
		_, err = tx.Exec(
			"UPDATE files SET content = ?, hash = ?, language = ?, line_count = ?, size_bytes = ?, parse_failed = ?, indexed_at = CURRENT_TIMESTAMP WHERE id = ?",
			f.Content, f.Hash, f.Language, f.LineCount, f.SizeBytes, f.ParseFailed, existingID,
		)
		if err != nil {
			return 0, err
		}
	case err == sql.ErrNoRows:
		res, err := tx.Exec(
			"INSERT INTO files (path, content, hash, language, line_count, size_bytes, parse_failed) VALUES (?, ?, ?, ?, ?, ?, ?)",
			f.Path, f.Content, f.Hash, f.Language, f.LineCount, f.SizeBytes, f.ParseFailed,
		)
		if err != nil {
			return 0, err
		}
		existingID, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	if err := insertChunks(tx, existingID, chunks); err != nil {
		return 0, err
	}
	symbolIDs, err := insertSymbols(tx, existingID, symbols)
	if err != nil {
		return 0, err
	}
	for _, e := range edges {
		if e.Src < 0 || e.Src >= len(symbolIDs) || e.Dst < 0 || e.Dst >= len(symbolIDs) {
			return 0, fmt.Errorf("edge references symbol index out of range (%d -> %d)", e.Src, e.Dst)
		}
		_, err := tx.Exec(
			"INSERT INTO edges (src_symbol_id, dst_symbol_id, kind) VALUES (?, ?, ?)",
			symbolIDs[e.Src], symbolIDs[e.Dst], e.Kind,
		)
		if err != nil {
			return 0, err
		}
	}
	for _, name := range imports {
		if _, err := tx.Exec("INSERT INTO file_imports (file_id, name) VALUES (?, ?)", existingID, name); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return existingID, nil
}

func insertChunks(tx *sql.Tx, fileID int64, chunks []Chunk) error {
	stmt, err := tx.Prepare(
		"INSERT INTO chunks (file_id, name, kind, start_line, end_line, text, hash) VALUES (?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.Exec(fileID, c.Name, c.Kind, c.StartLine, c.EndLine, c.Text, c.Hash); err != nil {
			return err
		}
	}
	return nil
}

func insertSymbols(tx *sql.Tx, fileID int64, symbols []SymbolSpec) ([]int64, error) {
	stmt, err := tx.Prepare(
		"INSERT INTO symbols (file_id, name, kind, signature, start_line, end_line, doc, parent_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	// Parents always precede children in parser output, so a single pass
	// can resolve Parent indexes against already-inserted IDs.
	ids := make([]int64, 0, len(symbols))
	for i, sym := range symbols {
		var parent any
		if sym.Parent >= 0 {
			if sym.Parent >= i {
				return nil, fmt.Errorf("symbol %d references parent %d which is not yet inserted", i, sym.Parent)
			}
			parent = ids[sym.Parent]
		}
		res, err := stmt.Exec(fileID, sym.Name, sym.Kind, sym.Signature, sym.StartLine, sym.EndLine, sym.Doc, parent)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// RemoveFile deletes a file and its facts. Chunks are deleted explicitly
// so the FTS delete triggers fire; cascade deletes bypass triggers unless
// recursive triggers are enabled.
func (s *SQLiteStore) RemoveFile(path string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE file_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM symbols WHERE file_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM files WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

const fileColumns = "id, path, content, hash, language, line_count, size_bytes, parse_failed, indexed_at"

func scanFile(row *sql.Row) (*FileRecord, error) {
	var f FileRecord
	err := row.Scan(&f.ID, &f.Path, &f.Content, &f.Hash, &f.Language, &f.LineCount, &f.SizeBytes, &f.ParseFailed, &f.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) GetFile(path string) (*FileRecord, error) {
	return scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
}

func (s *SQLiteStore) GetFileByID(id int64) (*FileRecord, error) {
	return scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
}

func (s *SQLiteStore) HasFile(path string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM files WHERE path = ?", path).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) ListFiles() ([]FileRecord, error) {
	rows, err := s.db.Query(
		"SELECT id, path, hash, language, line_count, size_bytes, parse_failed, indexed_at FROM files ORDER BY path",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		if err := rows.Scan(&f.ID, &f.Path, &f.Hash, &f.Language, &f.LineCount, &f.SizeBytes, &f.ParseFailed, &f.IndexedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

const chunkColumns = "id, file_id, name, kind, start_line, end_line, text, hash"

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	defer rows.Close()
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.FileID, &c.Name, &c.Kind, &c.StartLine, &c.EndLine, &c.Text, &c.Hash); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) ChunksForFile(fileID int64) ([]Chunk, error) {
	rows, err := s.db.Query("SELECT "+chunkColumns+" FROM chunks WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, err
	}
	return scanChunks(rows)
}

func (s *SQLiteStore) FindChunkCovering(fileID int64, start, end int) (*Chunk, error) {
	row := s.db.QueryRow(
		"SELECT "+chunkColumns+" FROM chunks WHERE file_id = ? AND start_line <= ? AND end_line >= ? ORDER BY (end_line - start_line), id LIMIT 1",
		fileID, start, end,
	)
	var c Chunk
	err := row.Scan(&c.ID, &c.FileID, &c.Name, &c.Kind, &c.StartLine, &c.EndLine, &c.Text, &c.Hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const symbolColumns = "id, file_id, name, kind, signature, start_line, end_line, doc, COALESCE(parent_id, 0)"

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	defer rows.Close()
	var symbols []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.ID, &sym.FileID, &sym.Name, &sym.Kind, &sym.Signature, &sym.StartLine, &sym.EndLine, &sym.Doc, &sym.ParentID); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) SymbolsForFile(fileID int64) ([]Symbol, error) {
	rows, err := s.db.Query("SELECT "+symbolColumns+" FROM symbols WHERE file_id = ? ORDER BY start_line", fileID)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows)
}

func (s *SQLiteStore) SymbolsByName(name string) ([]Symbol, error) {
	rows, err := s.db.Query(
		"SELECT s.id, s.file_id, s.name, s.kind, s.signature, s.start_line, s.end_line, s.doc, COALESCE(s.parent_id, 0) "+
			"FROM symbols s JOIN files f ON f.id = s.file_id WHERE s.name = ? ORDER BY f.path, s.start_line",
		name,
	)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows)
}

func (s *SQLiteStore) SymbolsByIDs(ids []int64) ([]Symbol, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := "?" + strings.Repeat(",?", len(ids)-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query("SELECT "+symbolColumns+" FROM symbols WHERE id IN ("+placeholders+") ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows)
}

func (s *SQLiteStore) SearchSymbols(pattern string, kinds []string, limit int) ([]Symbol, error) {
	query := "SELECT s.id, s.file_id, s.name, s.kind, s.signature, s.start_line, s.end_line, s.doc, COALESCE(s.parent_id, 0) " +
		"FROM symbols s JOIN files f ON f.id = s.file_id WHERE s.name LIKE ?"
	args := []any{"%" + pattern + "%"}
	if len(kinds) > 0 {
		query += " AND s.kind IN (?" + strings.Repeat(",?", len(kinds)-1) + ")"
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += " ORDER BY f.path, s.start_line LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	return scanSymbols(rows)
}

func (s *SQLiteStore) EdgesForSymbols(symbolIDs []int64) ([]Edge, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	placeholders := "?" + strings.Repeat(",?", len(symbolIDs)-1)
	args := make([]any, 0, len(symbolIDs)*2)
	for _, id := range symbolIDs {
		args = append(args, id)
	}
	for _, id := range symbolIDs {
		args = append(args, id)
	}
	rows, err := s.db.Query(
		"SELECT src_symbol_id, dst_symbol_id, kind FROM edges WHERE src_symbol_id IN ("+placeholders+") OR dst_symbol_id IN ("+placeholders+") ORDER BY src_symbol_id, dst_symbol_id",
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.SrcSymbolID, &e.DstSymbolID, &e.Kind); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ResolveImports re-derives cross-file import edges from the stored
// import references. Re-ingesting a file replaces its module symbol and
// cascades away every edge pointing at it, so this runs over all files
// after each ingest pass, not just the ones that changed.
func (s *SQLiteStore) ResolveImports() (int, error) {
	res, err := s.db.Exec(`
		INSERT INTO edges (src_symbol_id, dst_symbol_id, kind)
		SELECT src.id, dst.id, 'imports'
		FROM file_imports fi
		JOIN symbols src ON src.file_id = fi.file_id AND src.kind = 'module'
		JOIN symbols dst ON dst.kind = 'module' AND dst.name = fi.name AND dst.file_id != fi.file_id
		WHERE NOT EXISTS (
			SELECT 1 FROM edges e
			WHERE e.src_symbol_id = src.id AND e.dst_symbol_id = dst.id AND e.kind = 'imports'
		)`)
	if err != nil {
		return 0, err
	}
	added, err := res.RowsAffected()
	return int(added), err
}

func (s *SQLiteStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
