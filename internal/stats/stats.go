// Package stats computes the score distribution of a cohort of scored students.
package stats

import (
	"math"
	"sort"
	"strconv"

	"github.com/pavelanni/examstats/internal/model"
)

// ComputeCohortStats summarizes students. Only students with points > 0 take
// part in the mean, sigma and distinct-score list; every student gets a
// z-score relative to that group and a histogram slot. Percentiles are looked
// up in the supplied table keyed by PointsKey.
func ComputeCohortStats(students []model.ScoredStudent, percentiles map[string]float64) model.CohortStatistics {
	scores := participantScores(students)
	mean, sigma := MeanSigma(scores)

	cs := model.CohortStatistics{
		Participants: len(scores),
		Mean:         mean,
		Sigma:        sigma,
		Distinct:     distinctScores(students, percentiles),
		Histogram:    Histogram(students),
		Students:     make([]model.ScoredStudent, len(students)),
	}
	for i, s := range students {
		cs.Students[i] = s.WithZScore(ZScore(s.Score, mean, sigma))
	}
	return cs
}

// MeanSigma returns the arithmetic mean and population standard deviation of
// values. Both are 0 for an empty input.
func MeanSigma(values []float64) (mean, sigma float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var sumsq float64
	for _, v := range values {
		d := v - mean
		sumsq += d * d
	}
	return mean, math.Sqrt(sumsq / float64(n))
}

// ZScore is (score - mean) / sigma, or 0 when sigma is 0.
func ZScore(score, mean, sigma float64) float64 {
	if sigma == 0 || math.IsNaN(score) {
		return 0
	}
	d := score - mean
	// A score equal to the mean up to rounding of the mean itself is exactly average.
	if math.Abs(d) <= epsilon*max(1, math.Abs(mean)) {
		return 0
	}
	return d / sigma
}

const epsilon = 1e-12

// BucketIndex maps a score in [0,1] to its histogram bucket, floor(score*10)
// clamped to [0,9]. NaN goes to bucket 0.
func BucketIndex(score float64) int {
	if math.IsNaN(score) {
		return 0
	}
	// Round away representation noise so 0.3 lands in bucket 3, not 2.
	idx := int(math.Floor(score*model.HistogramBuckets + 1e-9))
	return min(max(idx, 0), model.HistogramBuckets-1)
}

// Histogram counts students per 10% score bucket. Students without an answer
// key have no score and are counted in bucket 0.
func Histogram(students []model.ScoredStudent) [model.HistogramBuckets]model.HistogramBucket {
	var h [model.HistogramBuckets]model.HistogramBucket
	for i := range h {
		h[i].Lower = float64(i) / model.HistogramBuckets
		h[i].Upper = float64(i+1) / model.HistogramBuckets
	}
	for _, s := range students {
		idx := 0
		if s.HasKey() {
			idx = BucketIndex(s.Score)
		}
		h[idx].Count++
	}
	if total := len(students); total > 0 {
		for i := range h {
			h[i].Percent = float64(h[i].Count) / float64(total)
		}
	}
	return h
}

// PointsKey formats points the way percentile tables are keyed.
func PointsKey(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}

// Percentiles builds a percentile table for students with points > 0 using
// the mid-rank definition: 100 * (below + equal/2) / n.
func Percentiles(students []model.ScoredStudent) map[string]float64 {
	var points []float64
	for _, s := range students {
		if s.Points > 0 {
			points = append(points, s.Points)
		}
	}
	out := make(map[string]float64)
	n := len(points)
	if n == 0 {
		return out
	}
	sort.Float64s(points)
	for i := 0; i < n; {
		j := i
		for j < n && points[j] == points[i] {
			j++
		}
		below, equal := float64(i), float64(j-i)
		out[PointsKey(points[i])] = 100 * (below + equal/2) / float64(n)
		i = j
	}
	return out
}

func participantScores(students []model.ScoredStudent) []float64 {
	var scores []float64
	for _, s := range students {
		if s.Points > 0 {
			scores = append(scores, s.Score)
		}
	}
	return scores
}

func distinctScores(students []model.ScoredStudent, percentiles map[string]float64) []model.DistinctScore {
	counts := make(map[float64]int)
	for _, s := range students {
		if s.Points > 0 {
			counts[s.Points]++
		}
	}
	out := make([]model.DistinctScore, 0, len(counts))
	for p, c := range counts {
		out = append(out, model.DistinctScore{
			Points:     p,
			Count:      c,
			Percentile: percentiles[PointsKey(p)],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out
}
