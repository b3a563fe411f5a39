package scoring

import "github.com/pavelanni/examstats/internal/model"

// WeightedPoints returns the points raw earns on q under weighted scoring.
// A correct answer earns the weight (1 when unset). A blank earns nothing. A
// wrong answer whose letters all carry partial credit earns the best partial
// fraction of the weight; any other wrong answer loses the penalty.
func WeightedPoints(q *model.Question, raw string) float64 {
	if q == nil {
		return 0
	}
	weight := q.EffectiveWeight()
	if EvaluateAnswer(q, raw) {
		return weight
	}
	given := model.ParseLetters(raw)
	if given.Empty() {
		return 0
	}
	if frac, ok := partialFraction(q, given); ok {
		return weight * frac
	}
	return -q.Penalty
}

// MaxPoints is the total possible for a key: the sum of weights of all
// questions that are not extra credit.
func MaxPoints(key model.AnswerKey) float64 {
	var total float64
	for i := range key.Questions {
		q := &key.Questions[i]
		if !q.ExtraCredit {
			total += q.EffectiveWeight()
		}
	}
	return total
}

// ScoreStudentWeighted is ScoreStudent for exams using weighted scoring.
// Score is points over the key's MaxPoints and may be negative or above 1.
func ScoreStudentWeighted(r model.StudentResponse, keys map[string]model.AnswerKey, totalQuestions int) model.ScoredStudent {
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
		if !hasKey {
			s.Answers[i] = model.AnswerResult{Value: raw}
			continue
		}
		q := key.Question(i)
		s.Answers[i] = model.AnswerResult{Value: raw, Correct: EvaluateAnswer(q, raw)}
		s.Points += WeightedPoints(q, raw)
	}
	if hasKey {
		if possible := MaxPoints(*key); possible > 0 {
			s.Score = s.Points / possible
		}
	}
	return s
}

func partialFraction(q *model.Question, given model.Letters) (float64, bool) {
	if len(q.PartialCredit) == 0 {
		return 0, false
	}
	credits := make(map[model.Letters]float64, len(q.PartialCredit))
	for letter, frac := range q.PartialCredit {
		credits[model.ParseLetters(letter)] = frac
	}
	best := 0.0
	for i := 0; i < model.NumOptions; i++ {
		if !given.Has(i) {
			continue
		}
		frac, ok := credits[model.Letters(1)<<i]
		if !ok {
			return 0, false
		}
		best = max(best, frac)
	}
	return best, true
}
