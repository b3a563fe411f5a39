package itemanalysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/scoring"
)

func scoreAll(t *testing.T, key model.AnswerKey, answers ...[]string) []model.ScoredStudent {
	t.Helper()
	keys := model.KeysByID([]model.AnswerKey{key})
	out := make([]model.ScoredStudent, len(answers))
	for i, a := range answers {
		r := model.StudentResponse{ResponseID: fmt.Sprintf("r%d", i), KeyID: key.ID, Answers: a}
		out[i] = scoring.ScoreStudent(r, keys, len(key.Questions))
	}
	return out
}

func TestFrequency_MultiSelectCountsEveryLetter(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{{Expected: "AB", Operator: model.AllRequired}}}
	students := scoreAll(t, key, []string{"AB"})

	it := ComputeItemStatistics(&key.Questions[0], 0, students)
	assert.Equal(t, 1.0, it.Frequency[0])
	assert.Equal(t, 1.0, it.Frequency[1])
	assert.Equal(t, 0.0, it.Frequency[2])
	assert.Equal(t, 1, it.Respondents)
	assert.Equal(t, 1.0, it.Difficulty)
}

func TestFrequency_IgnoresBlanks(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{{Expected: "A"}}}
	students := scoreAll(t, key, []string{"A"}, []string{"B"}, []string{""}, []string{"A"})

	it := ComputeItemStatistics(&key.Questions[0], 0, students)
	assert.Equal(t, 3, it.Respondents)
	assert.InDelta(t, 2.0/3, it.Frequency[0], 1e-12)
	assert.InDelta(t, 1.0/3, it.Frequency[1], 1e-12)
	assert.InDelta(t, 0.5, it.Difficulty, 1e-12)
}

func TestZeroRespondents(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{{Expected: "A"}, {Expected: "B"}}}
	students := scoreAll(t, key, []string{"A", ""}, []string{"B", ""})

	it := ComputeItemStatistics(&key.Questions[1], 1, students)
	assert.Zero(t, it.Respondents)
	assert.Equal(t, [model.NumOptions]float64{}, it.Frequency)
	assert.Zero(t, it.PointBiserial)
	assert.Zero(t, it.AlphaIfDeleted)
	assert.Zero(t, it.Difficulty)

	empty := ComputeItemStatistics(&key.Questions[0], 0, nil)
	assert.Zero(t, empty.Respondents)
	assert.Zero(t, empty.PointBiserial)
}

func TestPointBiserial(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{
		{Expected: "A"}, {Expected: "A"}, {Expected: "A"},
	}}
	students := scoreAll(t, key,
		[]string{"A", "A", "A"},
		[]string{"A", "A", "B"},
		[]string{"B", "A", "B"},
		[]string{"B", "B", "B"},
	)
	first := ComputeItemStatistics(&key.Questions[0], 0, students)
	// x = 1,1,0,0 and totals = 3,2,1,0.
	assert.InDelta(t, 2/(1*2.23606797749979), first.PointBiserial, 1e-9)
	assert.Greater(t, first.PointBiserial, 0.3)
	assert.Equal(t, model.Good, first.Class.Discrimination)
}

func TestPearsonConstant(t *testing.T) {
	assert.Zero(t, pearson([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Zero(t, pearson(nil, nil))
	assert.InDelta(t, -1, pearson([]float64{0, 1, 2}, []float64{2, 1, 0}), 1e-12)
}

func TestGroups27(t *testing.T) {
	students := make([]model.ScoredStudent, 10)
	for i := range students {
		students[i] = model.ScoredStudent{ResponseID: fmt.Sprint(i), Points: float64(i)}
	}
	upper, lower := groups(students)
	assert.Equal(t, []int{9, 8, 7}, upper)
	assert.Equal(t, []int{2, 1, 0}, lower)

	u, l := groups(students[:1])
	assert.Empty(t, u)
	assert.Empty(t, l)
}

func TestGroupFrequencies(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{{Expected: "A"}, {Expected: "A"}}}
	var answers [][]string
	// Four strong students answer A, four weak students answer C.
	for i := 0; i < 4; i++ {
		answers = append(answers, []string{"A", "A"})
	}
	for i := 0; i < 4; i++ {
		answers = append(answers, []string{"C", "B"})
	}
	students := scoreAll(t, key, answers...)
	it := ComputeItemStatistics(&key.Questions[0], 0, students)

	// round(0.27*8) = 2 students per group.
	assert.Equal(t, 1.0, it.Upper[0])
	assert.Equal(t, 0.0, it.Upper[2])
	assert.Equal(t, 1.0, it.Lower[2])
	assert.Equal(t, 0.0, it.Lower[0])
}

func TestCronbachAlpha(t *testing.T) {
	consistent := [][]float64{{1, 1, 1}, {0, 0, 0}, {1, 1, 1}, {0, 0, 0}}
	assert.InDelta(t, 1.0, CronbachAlpha(consistent), 1e-12)

	assert.Zero(t, CronbachAlpha(nil))
	assert.Zero(t, CronbachAlpha([][]float64{{1}, {0}}), "single item")
	assert.Zero(t, CronbachAlpha([][]float64{{1, 1}, {1, 1}}), "no variance")
}

func TestAlphaIfDeletedMatchesBruteForce(t *testing.T) {
	matrix := [][]float64{
		{1, 1, 0, 1, 1},
		{1, 0, 0, 1, 0},
		{0, 1, 1, 0, 1},
		{1, 1, 1, 1, 1},
		{0, 0, 0, 1, 0},
		{1, 1, 0, 0, 1},
		{0, 0, 1, 0, 0},
	}
	got := AlphaIfDeleted(matrix)
	require.Len(t, got, 5)
	for j := range got {
		sub := make([][]float64, len(matrix))
		for i, row := range matrix {
			sub[i] = append(append([]float64(nil), row[:j]...), row[j+1:]...)
		}
		assert.InDelta(t, CronbachAlpha(sub), got[j], 1e-9, "item %d", j)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		difficulty, rpb float64
		want            model.ItemClass
	}{
		{0.49, 0.14, model.ItemClass{Difficulty: model.Hard, Discrimination: model.Poor}},
		{0.5, 0.15, model.ItemClass{Difficulty: model.Medium, Discrimination: model.Fair}},
		{0.84, 0.29, model.ItemClass{Difficulty: model.Medium, Discrimination: model.Fair}},
		{0.85, 0.3, model.ItemClass{Difficulty: model.Easy, Discrimination: model.Good}},
		{1, -0.5, model.ItemClass{Difficulty: model.Easy, Discrimination: model.Poor}},
	}
	for _, tt := range tests {
		if got := Classify(tt.difficulty, tt.rpb); got != tt.want {
			t.Errorf("Classify(%v, %v) = %+v, want %+v", tt.difficulty, tt.rpb, got, tt.want)
		}
	}
}

func TestComputeKeyStatistics(t *testing.T) {
	key := model.AnswerKey{ID: "K", Questions: []model.Question{
		{Expected: "A"}, {Expected: "B"}, {Expected: "C"},
	}}
	students := scoreAll(t, key,
		[]string{"A", "B", "C"},
		[]string{"A", "B", ""},
		[]string{"A", "D", ""},
		[]string{"A", "", ""},
	)
	ka := ComputeKeyStatistics(key, students)

	assert.Equal(t, "K", ka.ID)
	assert.Equal(t, 4, ka.Students)
	assert.Equal(t, []int{4, 3, 1}, ka.CountOfResponses)
	require.Len(t, ka.Items, 3)
	require.Len(t, ka.DeletedItemsAlpha, 3)

	matrix := CorrectnessMatrix(students, 3)
	assert.InDelta(t, CronbachAlpha(matrix), ka.Reliability, 1e-12)
	for i, it := range ka.Items {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, it.AlphaIfDeleted, ka.DeletedItemsAlpha[i])
	}

	// Question 0 is answered correctly by everyone: easy, no discrimination.
	assert.Contains(t, ka.Matrix[model.Easy][model.Poor], 0)
	placed := 0
	for _, row := range ka.Matrix {
		for _, cell := range row {
			placed += len(cell)
		}
	}
	assert.Equal(t, 3, placed)
}
