package itemanalysis

import "github.com/pavelanni/examstats/internal/model"

// summary holds the variance structure of a correctness matrix shaped
// [students][items]. It is built once and shared by every alpha-if-deleted
// evaluation.
type summary struct {
	n, k     int
	itemVar  []float64 // population variance of each item
	totalVar float64   // population variance of the summed score
	cov      []float64 // covariance of each item with the summed score
	sumVar   float64
}

func newSummary(matrix [][]float64) summary {
	n := len(matrix)
	k := 0
	if n > 0 {
		k = len(matrix[0])
	}
	s := summary{n: n, k: k, itemVar: make([]float64, k), cov: make([]float64, k)}
	if n == 0 || k == 0 {
		return s
	}

	means := make([]float64, k)
	totals := make([]float64, n)
	for i, row := range matrix {
		for j := 0; j < k; j++ {
			means[j] += row[j]
			totals[i] += row[j]
		}
	}
	var totalMean float64
	for j := range means {
		means[j] /= float64(n)
		totalMean += means[j]
	}

	for i, row := range matrix {
		dt := totals[i] - totalMean
		s.totalVar += dt * dt
		for j := 0; j < k; j++ {
			d := row[j] - means[j]
			s.itemVar[j] += d * d
			s.cov[j] += d * dt
		}
	}
	s.totalVar /= float64(n)
	for j := 0; j < k; j++ {
		s.itemVar[j] /= float64(n)
		s.cov[j] /= float64(n)
		s.sumVar += s.itemVar[j]
	}
	return s
}

func (s summary) alpha() float64 {
	return alphaFrom(s.k, s.sumVar, s.totalVar)
}

// alphaWithout is alpha of the matrix with item j removed:
// Var(T - x_j) = Var(T) - 2 Cov(T, x_j) + Var(x_j).
func (s summary) alphaWithout(j int) float64 {
	if j < 0 || j >= s.k {
		return s.alpha()
	}
	totalVar := s.totalVar - 2*s.cov[j] + s.itemVar[j]
	return alphaFrom(s.k-1, s.sumVar-s.itemVar[j], totalVar)
}

func alphaFrom(k int, sumItemVar, totalVar float64) float64 {
	const tiny = 1e-12
	if k < 2 || totalVar <= tiny {
		return 0
	}
	kf := float64(k)
	return (kf / (kf - 1)) * (1 - sumItemVar/totalVar)
}

// CronbachAlpha computes Cronbach's alpha for a matrix shaped
// [students][items] using population variances. It returns 0 for fewer than
// two items, no students, or zero total variance. Rows shorter than the first
// row are padded with zeros.
func CronbachAlpha(matrix [][]float64) float64 {
	return newSummary(rectangular(matrix)).alpha()
}

// AlphaIfDeleted returns, for each item, alpha of the matrix without that item.
func AlphaIfDeleted(matrix [][]float64) []float64 {
	s := newSummary(rectangular(matrix))
	out := make([]float64, s.k)
	for j := range out {
		out[j] = s.alphaWithout(j)
	}
	return out
}

// CorrectnessMatrix turns scored students into a 0/1 matrix of k items.
func CorrectnessMatrix(students []model.ScoredStudent, k int) [][]float64 {
	m := make([][]float64, len(students))
	for i, st := range students {
		row := make([]float64, k)
		for j := 0; j < k && j < len(st.Answers); j++ {
			if st.Answers[j].Correct {
				row[j] = 1
			}
		}
		m[i] = row
	}
	return m
}

func rectangular(matrix [][]float64) [][]float64 {
	if len(matrix) == 0 {
		return matrix
	}
	k := len(matrix[0])
	for _, row := range matrix {
		if len(row) != k {
			out := make([][]float64, len(matrix))
			for i, r := range matrix {
				out[i] = make([]float64, k)
				copy(out[i], r)
			}
			return out
		}
	}
	return matrix
}
