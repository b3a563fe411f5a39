package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examstats/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL DEFAULT 1,
		name TEXT NOT NULL,
		total_questions INTEGER NOT NULL,
		scoring TEXT NOT NULL DEFAULT 'count',
		revision INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS answer_keys (
		exam_id INTEGER NOT NULL,
		key_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		questions TEXT NOT NULL,
		PRIMARY KEY (exam_id, key_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS responses (
		exam_id INTEGER NOT NULL,
		response_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		student_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		key_id TEXT NOT NULL DEFAULT '',
		answers TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (exam_id, response_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'viewer',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		hash TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		exam_id INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ImportExam stores an exam with its answer keys and responses in one transaction.
func (s *Store) ImportExam(e model.ExamImport) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO exams (course_id, name, total_questions, scoring, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.CourseID, e.Name, e.TotalQuestions, e.Scoring, time.Now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert exam: %w", err)
	}
	examID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, k := range e.AnswerKeys {
		questions, err := json.Marshal(k.Questions)
		if err != nil {
			return 0, fmt.Errorf("encode key %s: %w", k.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO answer_keys (exam_id, key_id, position, questions) VALUES (?, ?, ?, ?)`,
			examID, k.ID, i, string(questions),
		); err != nil {
			return 0, fmt.Errorf("insert key %s: %w", k.ID, err)
		}
	}

	now := time.Now()
	for i, r := range e.Students {
		answers, err := json.Marshal(r.Answers)
		if err != nil {
			return 0, fmt.Errorf("encode response %s: %w", r.ResponseID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO responses (exam_id, response_id, position, student_id, name, key_id, answers, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			examID, r.ResponseID, i, r.StudentID, r.Name, r.KeyID, string(answers), now,
		); err != nil {
			return 0, fmt.Errorf("insert response %s: %w", r.ResponseID, err)
		}
	}

	return examID, tx.Commit()
}

// GetExam returns an exam by ID, or nil if it does not exist.
func (s *Store) GetExam(id int64) (*model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, course_id, name, total_questions, scoring, revision, created_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.CourseID, &e.Name, &e.TotalQuestions, &e.Scoring, &e.Revision, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExams returns all exams, newest first.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, name, total_questions, scoring, revision, created_at FROM exams ORDER BY id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.CourseID, &e.Name, &e.TotalQuestions, &e.Scoring, &e.Revision, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListAnswerKeys returns the answer keys of an exam in import order.
func (s *Store) ListAnswerKeys(examID int64) ([]model.AnswerKey, error) {
	rows, err := s.db.Query(
		`SELECT key_id, questions FROM answer_keys WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []model.AnswerKey
	for rows.Next() {
		var k model.AnswerKey
		var questions string
		if err := rows.Scan(&k.ID, &questions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(questions), &k.Questions); err != nil {
			return nil, fmt.Errorf("decode key %s: %w", k.ID, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListResponses returns the scanned responses of an exam in import order.
func (s *Store) ListResponses(examID int64) ([]model.StudentResponse, error) {
	rows, err := s.db.Query(
		`SELECT response_id, student_id, name, key_id, answers FROM responses WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StudentResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResponse returns one response, or nil if it does not exist.
func (s *Store) GetResponse(examID int64, responseID string) (*model.StudentResponse, error) {
	row := s.db.QueryRow(
		`SELECT response_id, student_id, name, key_id, answers FROM responses WHERE exam_id = ? AND response_id = ?`,
		examID, responseID,
	)
	r, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateResponse overwrites the key and answers of a response and bumps the
// exam revision.
func (s *Store) UpdateResponse(examID int64, r model.StudentResponse) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE responses SET key_id = ?, answers = ?, updated_at = ? WHERE exam_id = ? AND response_id = ?`,
		r.KeyID, string(answers), time.Now(), examID, r.ResponseID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if _, err := tx.Exec(`UPDATE exams SET revision = revision + 1 WHERE id = ?`, examID); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (model.StudentResponse, error) {
	var r model.StudentResponse
	var answers string
	if err := row.Scan(&r.ResponseID, &r.StudentID, &r.Name, &r.KeyID, &answers); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return r, fmt.Errorf("decode response %s: %w", r.ResponseID, err)
	}
	return r, nil
}
