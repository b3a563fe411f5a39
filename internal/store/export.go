package store

import (
	"fmt"

	"github.com/pavelanni/examstats/internal/model"
)

// ExportExam rebuilds the import document of a stored exam, including any
// corrections applied since the import. It returns nil if the exam is unknown.
func (s *Store) ExportExam(examID int64) (*model.ExamImport, error) {
	exam, err := s.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("get exam %d: %w", examID, err)
	}
	if exam == nil {
		return nil, nil
	}
	keys, err := s.ListAnswerKeys(examID)
	if err != nil {
		return nil, fmt.Errorf("list answer keys: %w", err)
	}
	responses, err := s.ListResponses(examID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return &model.ExamImport{
		CourseID:       exam.CourseID,
		Name:           exam.Name,
		Scoring:        exam.Scoring,
		TotalQuestions: exam.TotalQuestions,
		AnswerKeys:     keys,
		Students:       responses,
	}, nil
}
