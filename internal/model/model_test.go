package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseLetters(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"A", "A"},
		{"ba", "AB"},
		{"CAC", "AC"},
		{"A?F", "A"},
		{"edcba", "ABCDE"},
	}
	for _, tt := range tests {
		got := ParseLetters(tt.raw).String()
		if got != tt.want {
			t.Errorf("ParseLetters(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLettersSubsetOf(t *testing.T) {
	ac := ParseLetters("AC")
	if !ParseLetters("A").SubsetOf(ac) {
		t.Error("A should be a subset of AC")
	}
	if ParseLetters("AB").SubsetOf(ac) {
		t.Error("AB should not be a subset of AC")
	}
	if got := ac.Count(); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}
}

func TestMatchPolicyJSON(t *testing.T) {
	var q Question
	if err := json.Unmarshal([]byte(`{"expected":"AB","operator":"and"}`), &q); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if q.Operator != AllRequired {
		t.Errorf("operator = %v, want AND", q.Operator)
	}

	if err := json.Unmarshal([]byte(`{"expected":"AB"}`), &q); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	q2 := Question{Expected: "A"}
	data, err := json.Marshal(q2)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"expected":"A","operator":"OR"}` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestResponseWithAnswerCopies(t *testing.T) {
	r := StudentResponse{ResponseID: "r1", Answers: []string{"A", "B"}}
	r2 := r.WithAnswer(1, "C")
	if r.Answers[1] != "B" {
		t.Errorf("original mutated: %v", r.Answers)
	}
	if r2.Answers[1] != "C" {
		t.Errorf("WithAnswer = %v", r2.Answers)
	}
	r3 := r.WithAnswer(3, "D")
	if len(r3.Answers) != 4 || r3.Answers[2] != "" {
		t.Errorf("WithAnswer past end = %v", r3.Answers)
	}
}

func validImport() ExamImport {
	return ExamImport{
		Name: "Midterm",
		AnswerKeys: []AnswerKey{
			{ID: "A", Questions: []Question{{Expected: "A"}, {Expected: "BC", Operator: AllRequired}}},
		},
		Students: []StudentResponse{
			{StudentID: "s1", KeyID: "A", Answers: []string{"a", "cb"}},
			{StudentID: "s2", Answers: []string{"A"}},
		},
	}
}

func TestExamImportNormalize(t *testing.T) {
	e := validImport()
	e.Normalize()
	if e.Scoring != ScoringCount {
		t.Errorf("scoring = %q, want count", e.Scoring)
	}
	if e.TotalQuestions != 2 {
		t.Errorf("totalQuestions = %d, want 2", e.TotalQuestions)
	}
	if e.Students[0].ResponseID == "" || e.Students[0].ResponseID == e.Students[1].ResponseID {
		t.Errorf("response ids not generated: %q %q", e.Students[0].ResponseID, e.Students[1].ResponseID)
	}
	if e.Students[0].Answers[1] != "BC" {
		t.Errorf("answer not normalized: %q", e.Students[0].Answers[1])
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestExamImportValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExamImport)
		field  string
	}{
		{"missing name", func(e *ExamImport) { e.Name = "" }, "name"},
		{"no keys", func(e *ExamImport) { e.AnswerKeys = nil }, "answerKeys"},
		{"key length mismatch", func(e *ExamImport) { e.TotalQuestions = 3 }, "answerKeys.A"},
		{"penalty over weight", func(e *ExamImport) {
			e.AnswerKeys[0].Questions[0].Weight = 1
			e.AnswerKeys[0].Questions[0].Penalty = 2
		}, "answerKeys.A[0]"},
		{"penalty over unset weight", func(e *ExamImport) {
			e.AnswerKeys[0].Questions[0].Weight = 0
			e.AnswerKeys[0].Questions[0].Penalty = 5
		}, "answerKeys.A[0]"},
		{"unknown key", func(e *ExamImport) { e.Students[0].KeyID = "Z" }, "students.keyId"},
		{"empty expected", func(e *ExamImport) { e.AnswerKeys[0].Questions[1].Expected = "XY" }, "answerKeys.A[1].expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validImport()
			e.Normalize()
			tt.mutate(&e)
			err := e.Validate()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestValidateAcceptsPenaltyUpToDefaultWeight(t *testing.T) {
	e := validImport()
	e.Normalize()
	e.AnswerKeys[0].Questions[0].Weight = 0
	e.AnswerKeys[0].Questions[0].Penalty = 1
	if err := e.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for penalty equal to the default weight", err)
	}
}

func TestEffectiveWeight(t *testing.T) {
	if got := (Question{}).EffectiveWeight(); got != 1 {
		t.Errorf("EffectiveWeight() of unset weight = %v, want 1", got)
	}
	if got := (Question{Weight: 2.5}).EffectiveWeight(); got != 2.5 {
		t.Errorf("EffectiveWeight() = %v, want 2.5", got)
	}
}
