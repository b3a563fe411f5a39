package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/examstats/internal/cache"
	"github.com/pavelanni/examstats/internal/event"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/scoring"
)

// ErrNotFound is returned when an exam or response does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence the service reads from and writes corrections to.
type Store interface {
	GetExam(id int64) (*model.Exam, error)
	ListAnswerKeys(examID int64) ([]model.AnswerKey, error)
	ListResponses(examID int64) ([]model.StudentResponse, error)
	GetResponse(examID int64, responseID string) (*model.StudentResponse, error)
	UpdateResponse(examID int64, r model.StudentResponse) error
}

// Service serves reports and applies corrections. Corrections to the same
// exam are serialized; reports are cached per exam revision.
type Service struct {
	store   Store
	cache   cache.Cache
	events  event.Publisher
	workers int

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

type Option func(*Service)

func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

func WithPublisher(p event.Publisher) Option { return func(s *Service) { s.events = p } }

// WithWorkers bounds how many answer keys are analysed in parallel.
func WithWorkers(n int) Option { return func(s *Service) { s.workers = n } }

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		cache: cache.Nop{},
		locks: make(map[int64]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Report returns the report of an exam, from cache when the revision matches.
func (s *Service) Report(ctx context.Context, examID int64) (*model.Report, error) {
	exam, err := s.exam(examID)
	if err != nil {
		return nil, err
	}

	key := cache.ReportKey(exam.ID, exam.Revision)
	var cached model.Report
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		slog.Warn("report cache read failed", "exam", examID, "error", err)
	} else if hit {
		slog.Debug("report served from cache", "exam", examID, "revision", exam.Revision)
		return &cached, nil
	}

	keys, err := s.store.ListAnswerKeys(examID)
	if err != nil {
		return nil, fmt.Errorf("list answer keys: %w", err)
	}
	responses, err := s.store.ListResponses(examID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}

	start := time.Now()
	rep, err := Build(ctx, *exam, keys, responses, s.workers)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	slog.Info("report built", "exam", examID, "students", len(responses), "keys", len(keys), "elapsed", time.Since(start))

	if err := s.cache.Set(ctx, key, rep); err != nil {
		slog.Warn("report cache write failed", "exam", examID, "error", err)
	}
	return rep, nil
}

// CorrectAnswer replaces one answer of a response and returns the rescored
// student. Under count scoring only the corrected answer is re-evaluated.
func (s *Service) CorrectAnswer(ctx context.Context, examID int64, responseID string, index int, raw, by string) (model.ScoredStudent, error) {
	return s.apply(ctx, examID, responseID, by, func(exam *model.Exam, keys map[string]model.AnswerKey, r model.StudentResponse) (model.StudentResponse, model.ScoredStudent, *model.CorrectionEvent, error) {
		if index < 0 || index >= exam.TotalQuestions {
			return r, model.ScoredStudent{}, nil, &model.ValidationError{
				Field:  "index",
				Reason: fmt.Sprintf("must be between 0 and %d", exam.TotalQuestions-1),
			}
		}
		value := model.ParseLetters(raw).String()
		updated := r.WithAnswer(index, value)

		var scored model.ScoredStudent
		if exam.Scoring == model.ScoringWeighted {
			scored = scoring.ScoreStudentWeighted(updated, keys, exam.TotalQuestions)
		} else {
			before := scoring.ScoreStudent(r, keys, exam.TotalQuestions)
			scored = scoring.CorrectAnswer(before, index, value, keys, exam.TotalQuestions)
		}
		return updated, scored, &model.CorrectionEvent{Kind: model.CorrectionAnswer, Index: index}, nil
	})
}

// Verify assigns a response to an answer key. When answers are given they
// replace the scanned ones before rescoring.
func (s *Service) Verify(ctx context.Context, examID int64, req model.VerifyRequest, by string) (model.ScoredStudent, error) {
	return s.apply(ctx, examID, req.ResponseID, by, func(exam *model.Exam, keys map[string]model.AnswerKey, r model.StudentResponse) (model.StudentResponse, model.ScoredStudent, *model.CorrectionEvent, error) {
		if _, ok := keys[req.KeyID]; !ok {
			return r, model.ScoredStudent{}, nil, &model.ValidationError{Field: "keyId", Reason: fmt.Sprintf("unknown key %q", req.KeyID)}
		}
		if len(req.Answers) > exam.TotalQuestions {
			return r, model.ScoredStudent{}, nil, &model.ValidationError{
				Field:  "answers",
				Reason: fmt.Sprintf("has %d answers, exam has %d questions", len(req.Answers), exam.TotalQuestions),
			}
		}
		kind := model.CorrectionReassign
		if req.Answers != nil {
			kind = model.CorrectionVerify
			r.Answers = make([]string, len(req.Answers))
			for i, a := range req.Answers {
				r.Answers[i] = model.ParseLetters(a).String()
			}
		}
		updated := r.WithKey(req.KeyID)
		var scored model.ScoredStudent
		if exam.Scoring == model.ScoringWeighted {
			scored = scoring.ScoreStudentWeighted(updated, keys, exam.TotalQuestions)
		} else {
			scored = scoring.ReassignKey(r, req.KeyID, keys, exam.TotalQuestions)
		}
		return updated, scored, &model.CorrectionEvent{Kind: kind}, nil
	})
}

// ReassignKey moves a response to another answer key and rescores it.
func (s *Service) ReassignKey(ctx context.Context, examID int64, responseID, keyID, by string) (model.ScoredStudent, error) {
	return s.Verify(ctx, examID, model.VerifyRequest{ResponseID: responseID, KeyID: keyID}, by)
}

type correction func(exam *model.Exam, keys map[string]model.AnswerKey, r model.StudentResponse) (model.StudentResponse, model.ScoredStudent, *model.CorrectionEvent, error)

func (s *Service) apply(ctx context.Context, examID int64, responseID, by string, fn correction) (model.ScoredStudent, error) {
	lock := s.examLock(examID)
	lock.Lock()
	defer lock.Unlock()

	exam, err := s.exam(examID)
	if err != nil {
		return model.ScoredStudent{}, err
	}
	resp, err := s.store.GetResponse(examID, responseID)
	if err != nil {
		return model.ScoredStudent{}, fmt.Errorf("get response %s: %w", responseID, err)
	}
	if resp == nil {
		return model.ScoredStudent{}, fmt.Errorf("response %s: %w", responseID, ErrNotFound)
	}
	keyList, err := s.store.ListAnswerKeys(examID)
	if err != nil {
		return model.ScoredStudent{}, fmt.Errorf("list answer keys: %w", err)
	}

	updated, scored, ev, err := fn(exam, model.KeysByID(keyList), *resp)
	if err != nil {
		return model.ScoredStudent{}, err
	}
	if err := s.store.UpdateResponse(examID, updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ScoredStudent{}, fmt.Errorf("response %s: %w", responseID, ErrNotFound)
		}
		return model.ScoredStudent{}, fmt.Errorf("update response %s: %w", responseID, err)
	}

	if err := s.cache.Delete(ctx, cache.ReportKey(exam.ID, exam.Revision)); err != nil {
		slog.Warn("report cache invalidation failed", "exam", examID, "error", err)
	}

	ev.ExamID = examID
	ev.ResponseID = responseID
	ev.KeyID = scored.KeyID
	ev.Points = scored.Points
	ev.Score = scored.Score
	ev.By = by
	ev.At = time.Now().UTC()
	slog.Info("correction applied", "kind", ev.Kind, "exam", examID, "response", responseID, "by", by, "points", scored.Points)
	if s.events != nil {
		if err := s.events.Publish(ctx, *ev); err != nil {
			slog.Warn("publish correction event failed", "kind", ev.Kind, "error", err)
		}
	}
	return scored, nil
}

func (s *Service) exam(id int64) (*model.Exam, error) {
	exam, err := s.store.GetExam(id)
	if err != nil {
		return nil, fmt.Errorf("get exam %d: %w", id, err)
	}
	if exam == nil {
		return nil, fmt.Errorf("exam %d: %w", id, ErrNotFound)
	}
	return exam, nil
}

func (s *Service) examLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}
