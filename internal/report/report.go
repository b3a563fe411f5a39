// Package report assembles exam reports from stored responses and applies
// grader corrections.
package report

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/examstats/internal/itemanalysis"
	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/scoring"
	"github.com/pavelanni/examstats/internal/stats"
)

// Build scores every response and runs cohort and item analysis. Answer keys
// are analysed concurrently, at most workers at a time (0 means no limit).
func Build(ctx context.Context, exam model.Exam, keys []model.AnswerKey, responses []model.StudentResponse, workers int) (*model.Report, error) {
	byID := model.KeysByID(keys)
	scored := scoring.ScoreAll(responses, byID, exam.TotalQuestions, exam.Scoring)
	percentiles := stats.Percentiles(scored)
	cohort := stats.ComputeCohortStats(scored, percentiles)

	rep := &model.Report{
		ExamID:         exam.ID,
		CourseID:       exam.CourseID,
		Name:           exam.Name,
		Scoring:        exam.Scoring,
		TotalQuestions: exam.TotalQuestions,
		MaxScore:       maxScore(exam, keys),
		Students:       []model.ScoredStudent{},
		NoAnswerKey:    []model.ScoredStudent{},
		AnswerKeys:     make([]model.KeyAnalysis, len(keys)),
		Percentiles:    percentiles,
		Cohort:         cohort,
		GeneratedAt:    time.Now().UTC(),
	}

	byKey := make(map[string][]model.ScoredStudent, len(keys))
	for _, s := range cohort.Students {
		if _, ok := byID[s.KeyID]; !ok {
			rep.NoAnswerKey = append(rep.NoAnswerKey, s)
			continue
		}
		rep.Students = append(rep.Students, s)
		byKey[s.KeyID] = append(byKey[s.KeyID], s)
	}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, key := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep.AnswerKeys[i] = itemanalysis.ComputeKeyStatistics(key, byKey[key.ID])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rep, nil
}

// maxScore is the number of questions for count scoring and the largest
// possible total over all keys for weighted scoring.
func maxScore(exam model.Exam, keys []model.AnswerKey) float64 {
	if exam.Scoring != model.ScoringWeighted {
		return float64(exam.TotalQuestions)
	}
	var best float64
	for _, k := range keys {
		best = max(best, scoring.MaxPoints(k))
	}
	return best
}

// ExamFromImport describes an import document as an exam that has not been stored.
func ExamFromImport(imp model.ExamImport) model.Exam {
	return model.Exam{
		CourseID:       imp.CourseID,
		Name:           imp.Name,
		TotalQuestions: imp.TotalQuestions,
		Scoring:        imp.Scoring,
	}
}
