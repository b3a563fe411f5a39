// Package scoring decides correctness of scanned answers and aggregates
// per-student points. Every function is pure: inputs are never modified and
// unscoreable data (missing key, missing question, malformed answer) is
// treated as an incorrect answer rather than an error.
package scoring

import (
	"github.com/pavelanni/examstats/internal/model"
)

// EvaluateAnswer reports whether raw satisfies q.
//
// AllRequired needs the exact expected set, in any order. AnySufficient
// needs a non-empty answer whose letters are all expected, so a strict
// subset of the expected letters is accepted.
func EvaluateAnswer(q *model.Question, raw string) bool {
	if q == nil {
		return false
	}
	expected := q.ExpectedLetters()
	if expected.Empty() {
		return false
	}
	given := model.ParseLetters(raw)

	switch q.Operator {
	case model.AllRequired:
		return given == expected
	case model.AnySufficient:
		return !given.Empty() && given.SubsetOf(expected)
	}
	return false
}

// ScoreStudent evaluates every answer of r against the key it references and
// counts correct answers. Score is points / totalQuestions; totalQuestions
// must be positive.
func ScoreStudent(r model.StudentResponse, keys map[string]model.AnswerKey, totalQuestions int) model.ScoredStudent {
	key, hasKey := lookupKey(r.KeyID, keys)

	s := model.ScoredStudent{
		StudentID:  r.StudentID,
		ResponseID: r.ResponseID,
		Name:       r.Name,
		KeyID:      r.KeyID,
		Answers:    make([]model.AnswerResult, totalQuestions),
	}
	for i := range s.Answers {
		raw := answerAt(r, i)
		correct := hasKey && EvaluateAnswer(key.Question(i), raw)
		s.Answers[i] = model.AnswerResult{Value: raw, Correct: correct}
		if correct {
			s.Points++
		}
	}
	s.Score = s.Points / float64(totalQuestions)
	return s
}

// CorrectAnswer replaces answer index of s with raw and adjusts points by the
// correctness flip only. The result equals ScoreStudent on the corrected
// response.
func CorrectAnswer(s model.ScoredStudent, index int, raw string, keys map[string]model.AnswerKey, totalQuestions int) model.ScoredStudent {
	if index < 0 || index >= totalQuestions {
		return s
	}
	key, hasKey := lookupKey(s.KeyID, keys)
	raw = model.ParseLetters(raw).String()

	wasCorrect := index < len(s.Answers) && s.Answers[index].Correct
	nowCorrect := hasKey && EvaluateAnswer(key.Question(index), raw)

	points := s.Points + delta(nowCorrect) - delta(wasCorrect)
	return s.WithAnswer(index, model.AnswerResult{Value: raw, Correct: nowCorrect}, points, points/float64(totalQuestions))
}

// ReassignKey rescores every answer of r against newKeyID from scratch.
func ReassignKey(r model.StudentResponse, newKeyID string, keys map[string]model.AnswerKey, totalQuestions int) model.ScoredStudent {
	return ScoreStudent(r.WithKey(newKeyID), keys, totalQuestions)
}

// ScoreAll scores a roster with the exam's scoring mode.
func ScoreAll(responses []model.StudentResponse, keys map[string]model.AnswerKey, totalQuestions int, mode model.ScoringMode) []model.ScoredStudent {
	out := make([]model.ScoredStudent, len(responses))
	for i, r := range responses {
		if mode == model.ScoringWeighted {
			out[i] = ScoreStudentWeighted(r, keys, totalQuestions)
		} else {
			out[i] = ScoreStudent(r, keys, totalQuestions)
		}
	}
	return out
}

func lookupKey(id string, keys map[string]model.AnswerKey) (*model.AnswerKey, bool) {
	if id == "" {
		return nil, false
	}
	k, ok := keys[id]
	if !ok {
		return nil, false
	}
	return &k, true
}

func answerAt(r model.StudentResponse, i int) string {
	if i >= len(r.Answers) {
		return ""
	}
	return model.ParseLetters(r.Answers[i]).String()
}

func delta(correct bool) float64 {
	if correct {
		return 1
	}
	return 0
}
