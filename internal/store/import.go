package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examstats/internal/model"
)

// ImportResult describes the outcome of ImportExamFile.
type ImportResult struct {
	ExamID    int64
	Duplicate bool // the same content was already imported under this name
	Students  int
	Keys      int
}

// ImportExamFile parses, validates and stores an exam document. A file whose
// name and SHA-256 match a previous import is skipped and reports the exam it
// produced then.
func (s *Store) ImportExamFile(name string, data []byte) (ImportResult, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	storedHash, examID, err := s.GetImportedFileHash(name)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status: %w", err)
	}
	if storedHash == hash {
		slog.Info("exam file unchanged, skipping import", "file", name, "exam", examID)
		return ImportResult{ExamID: examID, Duplicate: true}, nil
	}

	var imp model.ExamImport
	if err := json.Unmarshal(data, &imp); err != nil {
		return ImportResult{}, &model.ValidationError{Field: "file", Reason: err.Error()}
	}
	imp.Normalize()
	if err := imp.Validate(); err != nil {
		return ImportResult{}, err
	}

	examID, err = s.ImportExam(imp)
	if err != nil {
		return ImportResult{}, fmt.Errorf("import exam: %w", err)
	}
	if err := s.SetImportedFileHash(name, hash, examID); err != nil {
		slog.Error("failed to record import", "file", name, "error", err)
	}
	slog.Info("imported exam", "file", name, "exam", examID, "keys", len(imp.AnswerKeys), "students", len(imp.Students))
	return ImportResult{ExamID: examID, Students: len(imp.Students), Keys: len(imp.AnswerKeys)}, nil
}
