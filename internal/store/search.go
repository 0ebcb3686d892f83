package store

import (
	"strings"
)

// escapeFTS wraps the query in double quotes so FTS5 treats it as a literal
// phrase rather than query syntax.
func escapeFTS(query string) string {
	return `"` + strings.ReplaceAll(query, `"`, `""`) + `"`
}

func (s *SQLiteStore) SearchFTS(query string, limit int) ([]ChunkMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.file_id, c.name, c.kind, c.start_line, c.end_line, c.text, c.hash,
		       f.path, f.language, bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ?
		ORDER BY score, c.id
		LIMIT ?
	`, escapeFTS(query), limit)
	if err != nil {
		// FTS syntax errors degrade to a LIKE scan rather than failing.
		return s.likeSearch(query, limit)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		err := rows.Scan(
			&m.Chunk.ID, &m.Chunk.FileID, &m.Chunk.Name, &m.Chunk.Kind,
			&m.Chunk.StartLine, &m.Chunk.EndLine, &m.Chunk.Text, &m.Chunk.Hash,
			&m.FilePath, &m.Language, &m.Score,
		)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (s *SQLiteStore) likeSearch(query string, limit int) ([]ChunkMatch, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.file_id, c.name, c.kind, c.start_line, c.end_line, c.text, c.hash,
		       f.path, f.language
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		WHERE c.text LIKE ?
		ORDER BY f.path, c.start_line
		LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		err := rows.Scan(
			&m.Chunk.ID, &m.Chunk.FileID, &m.Chunk.Name, &m.Chunk.Kind,
			&m.Chunk.StartLine, &m.Chunk.EndLine, &m.Chunk.Text, &m.Chunk.Hash,
			&m.FilePath, &m.Language,
		)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// SearchFiles matches whole files via FTS and then scans their content for
// the individual matching lines.
func (s *SQLiteStore) SearchFiles(query string, limit int) ([]LineMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT f.path, f.content
		FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ?
		ORDER BY bm25(files_fts), f.path
		LIMIT ?
	`, escapeFTS(query), limit*2)
	if err != nil {
		rows, err = s.db.Query("SELECT path, content FROM files WHERE content LIKE ? ORDER BY path LIMIT ?", "%"+query+"%", limit*2)
		if err != nil {
			return nil, err
		}
	}
	defer rows.Close()

	needle := strings.ToLower(query)
	var matches []LineMatch
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, err
		}
		for i, line := range strings.Split(content, "\n") {
			if strings.Contains(strings.ToLower(line), needle) {
				matches = append(matches, LineMatch{
					Path:    path,
					Line:    i + 1,
					Snippet: strings.TrimSpace(line),
				})
				if len(matches) >= limit {
					return matches, nil
				}
			}
		}
	}
	return matches, rows.Err()
}
