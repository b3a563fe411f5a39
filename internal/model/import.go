package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ExamImport is used for loading an exam with its keys and scanned responses from JSON.
type ExamImport struct {
	CourseID       int64             `json:"courseId"`
	Name           string            `json:"name"`
	Scoring        ScoringMode       `json:"scoring"`
	TotalQuestions int               `json:"totalQuestions"`
	AnswerKeys     []AnswerKey       `json:"answerKeys"`
	Students       []StudentResponse `json:"students"`
}

// ValidationError reports an exam setup problem found at import time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalize fills defaults: scoring mode, total questions and response ids.
func (e *ExamImport) Normalize() {
	if e.Scoring == "" {
		e.Scoring = ScoringCount
	}
	if e.CourseID == 0 {
		e.CourseID = 1
	}
	if e.TotalQuestions == 0 && len(e.AnswerKeys) > 0 {
		e.TotalQuestions = len(e.AnswerKeys[0].Questions)
	}
	for i := range e.Students {
		if e.Students[i].ResponseID == "" {
			e.Students[i].ResponseID = uuid.NewString()
		}
		for j, a := range e.Students[i].Answers {
			e.Students[i].Answers[j] = ParseLetters(a).String()
		}
	}
}

// Validate checks the exam setup rules the scoring engine relies on.
func (e *ExamImport) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if e.Scoring != ScoringCount && e.Scoring != ScoringWeighted {
		return &ValidationError{Field: "scoring", Reason: fmt.Sprintf("unknown mode %q", e.Scoring)}
	}
	if e.TotalQuestions <= 0 {
		return &ValidationError{Field: "totalQuestions", Reason: "must be positive"}
	}
	if len(e.AnswerKeys) == 0 {
		return &ValidationError{Field: "answerKeys", Reason: "at least one answer key is required"}
	}

	keyIDs := make(map[string]bool, len(e.AnswerKeys))
	for _, k := range e.AnswerKeys {
		if k.ID == "" {
			return &ValidationError{Field: "answerKeys.id", Reason: "required"}
		}
		if keyIDs[k.ID] {
			return &ValidationError{Field: "answerKeys.id", Reason: fmt.Sprintf("duplicate key %q", k.ID)}
		}
		keyIDs[k.ID] = true
		if len(k.Questions) != e.TotalQuestions {
			return &ValidationError{
				Field:  "answerKeys." + k.ID,
				Reason: fmt.Sprintf("has %d questions, exam has %d", len(k.Questions), e.TotalQuestions),
			}
		}
		for i, q := range k.Questions {
			if q.ExpectedLetters().Empty() {
				return &ValidationError{Field: fmt.Sprintf("answerKeys.%s[%d].expected", k.ID, i), Reason: "no letters A-E"}
			}
			if q.Weight < 0 || q.Penalty < 0 {
				return &ValidationError{Field: fmt.Sprintf("answerKeys.%s[%d]", k.ID, i), Reason: "weight and penalty must not be negative"}
			}
			if q.Penalty > q.EffectiveWeight() {
				return &ValidationError{Field: fmt.Sprintf("answerKeys.%s[%d]", k.ID, i), Reason: "penalty exceeds weight"}
			}
		}
	}

	seen := make(map[string]bool, len(e.Students))
	for _, s := range e.Students {
		if seen[s.ResponseID] {
			return &ValidationError{Field: "students.responseId", Reason: fmt.Sprintf("duplicate response %q", s.ResponseID)}
		}
		seen[s.ResponseID] = true
		if s.KeyID != "" && !keyIDs[s.KeyID] {
			return &ValidationError{Field: "students.keyId", Reason: fmt.Sprintf("unknown key %q", s.KeyID)}
		}
		if len(s.Answers) > e.TotalQuestions {
			return &ValidationError{
				Field:  "students." + s.ResponseID,
				Reason: fmt.Sprintf("has %d answers, exam has %d questions", len(s.Answers), e.TotalQuestions),
			}
		}
	}
	return nil
}
