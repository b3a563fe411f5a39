// Package itemanalysis computes per-question psychometrics for an answer key:
// option frequencies, point-biserial discrimination, 27% group breakdowns,
// difficulty, and reliability with the item deleted.
package itemanalysis

import (
	"math"
	"sort"

	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/scoring"
)

// GroupFraction is the share of students in each of the upper and lower groups.
const GroupFraction = 0.27

// Classification thresholds for the item matrix.
const (
	HardBelow   = 0.5
	MediumBelow = 0.85
	PoorBelow   = 0.15
	FairBelow   = 0.3
)

// Classify places an item in the difficulty/discrimination matrix.
func Classify(difficulty, rpb float64) model.ItemClass {
	var c model.ItemClass
	switch {
	case difficulty < HardBelow:
		c.Difficulty = model.Hard
	case difficulty < MediumBelow:
		c.Difficulty = model.Medium
	default:
		c.Difficulty = model.Easy
	}
	switch {
	case rpb < PoorBelow:
		c.Discrimination = model.Poor
	case rpb < FairBelow:
		c.Discrimination = model.Fair
	default:
		c.Discrimination = model.Good
	}
	return c
}

// ComputeItemStatistics analyses question index across students, which must
// all have been scored against the same key. Insufficient data yields zeros.
func ComputeItemStatistics(q *model.Question, index int, students []model.ScoredStudent) model.ItemStatistic {
	k := itemCount(students)
	a := newAnalyzer(students, k)
	return a.item(q, index)
}

// ComputeKeyStatistics analyses every question of key. The variance structure
// is computed once and shared by all alpha-if-deleted evaluations.
func ComputeKeyStatistics(key model.AnswerKey, students []model.ScoredStudent) model.KeyAnalysis {
	k := len(key.Questions)
	a := newAnalyzer(students, k)

	ka := model.KeyAnalysis{
		ID:                key.ID,
		Questions:         key.Questions,
		Students:          len(students),
		Reliability:       a.summary.alpha(),
		DeletedItemsAlpha: make([]float64, k),
		CountOfResponses:  make([]int, k),
		Items:             make([]model.ItemStatistic, k),
	}
	for i := range key.Questions {
		it := a.item(&key.Questions[i], i)
		ka.Items[i] = it
		ka.DeletedItemsAlpha[i] = it.AlphaIfDeleted
		ka.CountOfResponses[i] = it.Respondents
		cell := &ka.Matrix[it.Class.Difficulty][it.Class.Discrimination]
		*cell = append(*cell, i)
	}
	return ka
}

type analyzer struct {
	students []model.ScoredStudent
	summary  summary
	upper    []int // student indexes of the top group
	lower    []int // student indexes of the bottom group
}

func newAnalyzer(students []model.ScoredStudent, k int) *analyzer {
	a := &analyzer{
		students: students,
		summary:  newSummary(CorrectnessMatrix(students, k)),
	}
	a.upper, a.lower = groups(students)
	return a
}

func (a *analyzer) item(q *model.Question, index int) model.ItemStatistic {
	it := model.ItemStatistic{Index: index}
	n := len(a.students)
	if n == 0 {
		it.Class = Classify(0, 0)
		return it
	}

	var counts [model.NumOptions]int
	correct := make([]float64, n)
	totals := make([]float64, n)
	for i, s := range a.students {
		totals[i] = s.Points
		ans, ok := answerAt(s, index)
		if !ok {
			continue
		}
		if isCorrect(q, ans) {
			correct[i] = 1
			it.Correct++
		}
		letters := model.ParseLetters(ans.Value)
		if letters.Empty() {
			continue
		}
		it.Respondents++
		for o := 0; o < model.NumOptions; o++ {
			if letters.Has(o) {
				counts[o]++
			}
		}
	}

	if it.Respondents > 0 {
		for o := range counts {
			it.Frequency[o] = float64(counts[o]) / float64(it.Respondents)
		}
		it.PointBiserial = pearson(correct, totals)
		it.AlphaIfDeleted = a.summary.alphaWithout(index)
	}
	it.Difficulty = float64(it.Correct) / float64(n)
	it.Upper = a.groupFrequency(a.upper, index)
	it.Lower = a.groupFrequency(a.lower, index)
	it.Class = Classify(it.Difficulty, it.PointBiserial)
	return it
}

func (a *analyzer) groupFrequency(group []int, index int) [model.NumOptions]float64 {
	var f [model.NumOptions]float64
	if len(group) == 0 {
		return f
	}
	for _, si := range group {
		ans, ok := answerAt(a.students[si], index)
		if !ok {
			continue
		}
		letters := model.ParseLetters(ans.Value)
		for o := 0; o < model.NumOptions; o++ {
			if letters.Has(o) {
				f[o]++
			}
		}
	}
	for o := range f {
		f[o] /= float64(len(group))
	}
	return f
}

// groups returns the indexes of the top and bottom 27% of students by points.
func groups(students []model.ScoredStudent) (upper, lower []int) {
	n := len(students)
	size := int(math.Round(GroupFraction * float64(n)))
	if size == 0 {
		return nil, nil
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return students[order[i]].Points > students[order[j]].Points
	})
	return order[:size], order[n-size:]
}

// pearson is the correlation coefficient of x and y, 0 when either is constant.
func pearson(x, y []float64) float64 {
	n := float64(len(x))
	if n == 0 {
		return 0
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}

// isCorrect re-evaluates against q when given, so item statistics follow the
// same correctness rule as scoring; otherwise the stored flag is used.
func isCorrect(q *model.Question, ans model.AnswerResult) bool {
	if q == nil {
		return ans.Correct
	}
	return scoring.EvaluateAnswer(q, ans.Value)
}

func answerAt(s model.ScoredStudent, i int) (model.AnswerResult, bool) {
	if i < 0 || i >= len(s.Answers) {
		return model.AnswerResult{}, false
	}
	return s.Answers[i], true
}

func itemCount(students []model.ScoredStudent) int {
	k := 0
	for _, s := range students {
		k = max(k, len(s.Answers))
	}
	return k
}
