package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleGrader may read reports and apply corrections.
	UserRoleGrader UserRole = "grader"
	// UserRoleViewer may only read reports.
	UserRoleViewer UserRole = "viewer"
	// UserRoleAdmin may do everything, including importing exams.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// APIToken is a bearer token issued to a user after login.
type APIToken struct {
	Hash      string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Options lists the answer letters a scanned sheet can carry, in column order.
const Options = "ABCDE"

// NumOptions is the number of answer letters.
const NumOptions = len(Options)

// MatchPolicy decides how a response is compared against the expected letters.
type MatchPolicy int

const (
	// AnySufficient accepts a non-empty response whose letters are all expected ("OR").
	AnySufficient MatchPolicy = iota
	// AllRequired accepts only the exact expected set ("AND").
	AllRequired
)

func (p MatchPolicy) String() string {
	if p == AllRequired {
		return "AND"
	}
	return "OR"
}

// MarshalJSON encodes the policy as "AND" or "OR".
func (p MatchPolicy) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts "AND" / "OR" in any case. Anything else is AnySufficient.
func (p *MatchPolicy) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("match policy: %w", err)
	}
	*p = ParseMatchPolicy(s)
	return nil
}

// ParseMatchPolicy maps an operator string to a policy, defaulting to AnySufficient.
func ParseMatchPolicy(s string) MatchPolicy {
	if strings.EqualFold(strings.TrimSpace(s), "AND") {
		return AllRequired
	}
	return AnySufficient
}

// Letters is a set of answer letters A-E stored as a bitmask (bit 0 = A).
type Letters uint8

// ParseLetters builds a letter set from a raw answer. Case is ignored and
// characters outside A-E are dropped.
func ParseLetters(raw string) Letters {
	var l Letters
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if idx := strings.IndexByte(Options, c); idx >= 0 {
			l |= 1 << idx
		}
	}
	return l
}

// Has reports whether the option at idx (0 = A) is in the set.
func (l Letters) Has(idx int) bool {
	return idx >= 0 && idx < NumOptions && l&(1<<idx) != 0
}

// Empty reports whether no letter is selected.
func (l Letters) Empty() bool { return l == 0 }

// SubsetOf reports whether every letter of l is also in o.
func (l Letters) SubsetOf(o Letters) bool { return l&^o == 0 }

// Count returns the number of selected letters.
func (l Letters) Count() int {
	n := 0
	for i := 0; i < NumOptions; i++ {
		if l.Has(i) {
			n++
		}
	}
	return n
}

// String renders the set in canonical order, e.g. "AC".
func (l Letters) String() string {
	var sb strings.Builder
	for i := 0; i < NumOptions; i++ {
		if l.Has(i) {
			sb.WriteByte(Options[i])
		}
	}
	return sb.String()
}

// ScoringMode selects how points are aggregated for an exam.
type ScoringMode string

const (
	// ScoringCount awards one point per correct answer.
	ScoringCount ScoringMode = "count"
	// ScoringWeighted uses question weights, penalties and partial credit.
	ScoringWeighted ScoringMode = "weighted"
)

// Question is one entry of an answer key.
type Question struct {
	Expected      string             `json:"expected"`
	Operator      MatchPolicy        `json:"operator"`
	Weight        float64            `json:"weight,omitempty"`
	Penalty       float64            `json:"penalty,omitempty"`
	ExtraCredit   bool               `json:"extraCredit,omitempty"`
	PartialCredit map[string]float64 `json:"partialCredit,omitempty"`
}

// ExpectedLetters returns the normalized set of accepted letters.
func (q Question) ExpectedLetters() Letters {
	return ParseLetters(q.Expected)
}

// EffectiveWeight is the points a correct answer earns; an unset weight counts as 1.
func (q Question) EffectiveWeight() float64 {
	if q.Weight == 0 {
		return 1
	}
	return q.Weight
}

// AnswerKey holds the expected responses and scoring rules for one exam variant.
type AnswerKey struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Question returns the question at index i, or nil when out of range.
func (k *AnswerKey) Question(i int) *Question {
	if k == nil || i < 0 || i >= len(k.Questions) {
		return nil
	}
	return &k.Questions[i]
}

// KeysByID indexes answer keys by identifier.
func KeysByID(keys []AnswerKey) map[string]AnswerKey {
	m := make(map[string]AnswerKey, len(keys))
	for _, k := range keys {
		m[k.ID] = k
	}
	return m
}

// StudentResponse is one scanned answer sheet.
type StudentResponse struct {
	StudentID  string   `json:"id"`
	ResponseID string   `json:"responseId"`
	Name       string   `json:"name,omitempty"`
	KeyID      string   `json:"keyId,omitempty"` // empty while unverified
	Answers    []string `json:"answers"`
}

// WithAnswer returns a copy of the response with answer i replaced.
func (r StudentResponse) WithAnswer(i int, raw string) StudentResponse {
	answers := make([]string, max(len(r.Answers), i+1))
	copy(answers, r.Answers)
	answers[i] = raw
	r.Answers = answers
	return r
}

// WithKey returns a copy of the response assigned to another answer key.
func (r StudentResponse) WithKey(keyID string) StudentResponse {
	r.Answers = append([]string(nil), r.Answers...)
	r.KeyID = keyID
	return r
}

// AnswerResult is the evaluation of one raw answer.
type AnswerResult struct {
	Value   string `json:"value"`
	Correct bool   `json:"correct"`
}

// ScoredStudent is derived from a StudentResponse and its answer key. It is
// never mutated in place; the With* helpers return modified copies.
type ScoredStudent struct {
	StudentID  string         `json:"id"`
	ResponseID string         `json:"responseId"`
	Name       string         `json:"name,omitempty"`
	KeyID      string         `json:"keyId,omitempty"`
	Answers    []AnswerResult `json:"answers"`
	Points     float64        `json:"points"`
	Score      float64        `json:"score"`
	ZScore     float64        `json:"zscore"`
}

// Response rebuilds the raw response the student was scored from.
func (s ScoredStudent) Response() StudentResponse {
	raw := make([]string, len(s.Answers))
	for i, a := range s.Answers {
		raw[i] = a.Value
	}
	return StudentResponse{
		StudentID:  s.StudentID,
		ResponseID: s.ResponseID,
		Name:       s.Name,
		KeyID:      s.KeyID,
		Answers:    raw,
	}
}

// HasKey reports whether the student was scored against an answer key.
func (s ScoredStudent) HasKey() bool { return s.KeyID != "" }

// WithZScore returns a copy carrying the given z-score.
func (s ScoredStudent) WithZScore(z float64) ScoredStudent {
	s.Answers = append([]AnswerResult(nil), s.Answers...)
	s.ZScore = z
	return s
}

// WithAnswer returns a copy with answer i replaced and points/score updated.
func (s ScoredStudent) WithAnswer(i int, a AnswerResult, points, score float64) ScoredStudent {
	answers := make([]AnswerResult, max(len(s.Answers), i+1))
	copy(answers, s.Answers)
	answers[i] = a
	s.Answers = answers
	s.Points = points
	s.Score = score
	return s
}

// Exam is a stored exam with its scoring configuration.
type Exam struct {
	ID             int64       `json:"id"`
	CourseID       int64       `json:"courseId"`
	Name           string      `json:"name"`
	TotalQuestions int         `json:"totalQuestions"`
	Scoring        ScoringMode `json:"scoring"`
	Revision       int64       `json:"revision"` // bumped on every correction
	CreatedAt      time.Time   `json:"createdAt"`
}

// ServerConfig holds runtime parameters for the HTTP service set via CLI flags.
type ServerConfig struct {
	Lang    string // default UI language for HTML reports
	Realm   string // basic auth realm
	Workers int    // parallel answer keys per report; 0 means unbounded
}
