package store

import "database/sql"

// GetImportedFileHash returns the content hash recorded for path and the exam
// it produced. An unknown path yields "" and 0.
func (s *Store) GetImportedFileHash(path string) (string, int64, error) {
	var hash string
	var examID int64
	err := s.db.QueryRow(`SELECT hash, exam_id FROM imported_files WHERE path = ?`, path).Scan(&hash, &examID)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	return hash, examID, err
}

// SetImportedFileHash records that path with the given hash was imported as examID.
func (s *Store) SetImportedFileHash(path, hash string, examID int64) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, exam_id) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, exam_id = excluded.exam_id`,
		path, hash, examID,
	)
	return err
}
