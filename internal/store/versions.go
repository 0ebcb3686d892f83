package store

import "database/sql"

func (s *SQLiteStore) SaveReportVersion(v ReportVersion) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO report_versions (run_id, iteration, content, valid_count, invalid_count) VALUES (?, ?, ?, ?, ?)",
		v.RunID, v.Iteration, v.Content, v.ValidCitations, v.InvalidCitations,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) ListReportVersions() ([]ReportVersion, error) {
	rows, err := s.db.Query(
		"SELECT id, run_id, iteration, valid_count, invalid_count, created_at FROM report_versions ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []ReportVersion
	for rows.Next() {
		var v ReportVersion
		if err := rows.Scan(&v.ID, &v.RunID, &v.Iteration, &v.ValidCitations, &v.InvalidCitations, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) GetReportVersion(id int64) (*ReportVersion, error) {
	var v ReportVersion
	err := s.db.QueryRow(
		"SELECT id, run_id, iteration, content, valid_count, invalid_count, created_at FROM report_versions WHERE id = ?",
		id,
	).Scan(&v.ID, &v.RunID, &v.Iteration, &v.Content, &v.ValidCitations, &v.InvalidCitations, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// LatestReportVersion returns the most recently saved version, or nil when
// none have been written.
func (s *SQLiteStore) LatestReportVersion() (*ReportVersion, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM report_versions ORDER BY id DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetReportVersion(id)
}
