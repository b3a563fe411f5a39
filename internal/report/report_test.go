package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/examstats/internal/model"
	"github.com/pavelanni/examstats/internal/scoring"
	"github.com/pavelanni/examstats/internal/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.CorrectionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.CorrectionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(data, dst)
}

func (c *mapCache) Set(_ context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func testExam() model.ExamImport {
	return model.ExamImport{
		Name:           "Quiz",
		Scoring:        model.ScoringCount,
		TotalQuestions: 3,
		AnswerKeys: []model.AnswerKey{
			{ID: "K1", Questions: []model.Question{{Expected: "A"}, {Expected: "B"}, {Expected: "AC", Operator: model.AllRequired}}},
			{ID: "K2", Questions: []model.Question{{Expected: "C"}, {Expected: "D"}, {Expected: "E"}}},
		},
		Students: []model.StudentResponse{
			{StudentID: "s1", ResponseID: "r1", KeyID: "K1", Answers: []string{"A", "B", "AC"}},
			{StudentID: "s2", ResponseID: "r2", KeyID: "K1", Answers: []string{"A", "C", "A"}},
			{StudentID: "s3", ResponseID: "r3", KeyID: "K2", Answers: []string{"C", "D", ""}},
			{StudentID: "s4", ResponseID: "r4", Answers: []string{"C", "D", "E"}},
		},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, *store.Store, int64) {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	imp := testExam()
	imp.Normalize()
	require.NoError(t, imp.Validate())
	id, err := st.ImportExam(imp)
	require.NoError(t, err)
	return NewService(st, opts...), st, id
}

func TestBuild(t *testing.T) {
	imp := testExam()
	rep, err := Build(context.Background(), ExamFromImport(imp), imp.AnswerKeys, imp.Students, 1)
	require.NoError(t, err)

	assert.Equal(t, 3.0, rep.MaxScore)
	require.Len(t, rep.Students, 3)
	require.Len(t, rep.NoAnswerKey, 1)
	assert.Equal(t, "r4", rep.NoAnswerKey[0].ResponseID)
	assert.Zero(t, rep.NoAnswerKey[0].Points)

	require.Len(t, rep.AnswerKeys, 2)
	assert.Equal(t, "K1", rep.AnswerKeys[0].ID)
	assert.Equal(t, 2, rep.AnswerKeys[0].Students)
	assert.Equal(t, 1, rep.AnswerKeys[1].Students)

	// r1 = 3, r2 = 1, r3 = 2 points.
	assert.Equal(t, 3, rep.Cohort.Participants)
	assert.InDelta(t, 2.0/3, rep.Cohort.Mean, 1e-12)
	assert.Len(t, rep.Percentiles, 3)
}

func TestBuildWeightedMaxScore(t *testing.T) {
	imp := testExam()
	imp.Scoring = model.ScoringWeighted
	imp.AnswerKeys[1].Questions[0].Weight = 4
	imp.AnswerKeys[1].Questions[2].ExtraCredit = true

	rep, err := Build(context.Background(), ExamFromImport(imp), imp.AnswerKeys, imp.Students, 0)
	require.NoError(t, err)
	// K1 = 3, K2 = 4 + 1.
	assert.Equal(t, 5.0, rep.MaxScore)
}

func TestBuildCanceled(t *testing.T) {
	imp := testExam()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, ExamFromImport(imp), imp.AnswerKeys, imp.Students, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportNotFound(t *testing.T) {
	svc, _, id := newTestService(t)
	_, err := svc.Report(context.Background(), id+1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestReportIsCachedPerRevision(t *testing.T) {
	c := newMapCache()
	svc, _, id := newTestService(t, WithCache(c))
	ctx := context.Background()

	first, err := svc.Report(ctx, id)
	require.NoError(t, err)
	_, err = svc.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, c.hits)

	_, err = svc.CorrectAnswer(ctx, id, "r2", 1, "b", "grader")
	require.NoError(t, err)

	after, err := svc.Report(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, c.hits, "correction must not serve the old revision")
	assert.Greater(t, after.Cohort.Mean, first.Cohort.Mean)
}

func TestCorrectAnswerMatchesFullRescore(t *testing.T) {
	pub := &recordingPublisher{}
	svc, st, id := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	got, err := svc.CorrectAnswer(ctx, id, "r2", 2, "ca", "grader")
	require.NoError(t, err)

	stored, err := st.GetResponse(id, "r2")
	require.NoError(t, err)
	assert.Equal(t, "AC", stored.Answers[2])

	keys, err := st.ListAnswerKeys(id)
	require.NoError(t, err)
	want := scoring.ScoreStudent(*stored, model.KeysByID(keys), 3)
	assert.Equal(t, want.Points, got.Points)
	assert.Equal(t, want.Answers, got.Answers)
	assert.Equal(t, 2.0, got.Points)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, model.CorrectionAnswer, ev.Kind)
	assert.Equal(t, "r2", ev.ResponseID)
	assert.Equal(t, 2, ev.Index)
	assert.Equal(t, "grader", ev.By)
}

func TestCorrectAnswerErrors(t *testing.T) {
	svc, _, id := newTestService(t)
	ctx := context.Background()

	_, err := svc.CorrectAnswer(ctx, id, "missing", 0, "A", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.CorrectAnswer(ctx, id, "r1", 3, "A", "")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "index", ve.Field)
}

func TestVerify(t *testing.T) {
	pub := &recordingPublisher{}
	svc, st, id := newTestService(t, WithPublisher(pub))
	ctx := context.Background()

	got, err := svc.Verify(ctx, id, model.VerifyRequest{ResponseID: "r4", KeyID: "K2", Answers: []string{"c", "d", "e"}}, "grader")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got.Points)
	assert.Equal(t, "K2", got.KeyID)

	stored, err := st.GetResponse(id, "r4")
	require.NoError(t, err)
	assert.Equal(t, "K2", stored.KeyID)
	assert.Equal(t, []string{"C", "D", "E"}, stored.Answers)

	rep, err := svc.Report(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rep.NoAnswerKey)
	assert.Equal(t, model.CorrectionVerify, pub.events[0].Kind)

	_, err = svc.Verify(ctx, id, model.VerifyRequest{ResponseID: "r4", KeyID: "nope"}, "")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "keyId", ve.Field)
}

func TestReassignKeyMatchesFreshScan(t *testing.T) {
	svc, st, id := newTestService(t)
	ctx := context.Background()

	got, err := svc.ReassignKey(ctx, id, "r3", "K1", "")
	require.NoError(t, err)

	stored, err := st.GetResponse(id, "r3")
	require.NoError(t, err)
	keys, err := st.ListAnswerKeys(id)
	require.NoError(t, err)
	assert.Equal(t, scoring.ScoreStudent(*stored, model.KeysByID(keys), 3), got)
}

func TestConcurrentCorrections(t *testing.T) {
	svc, st, id := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CorrectAnswer(ctx, id, "r2", i, "E", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := st.GetResponse(id, "r2")
	require.NoError(t, err)
	assert.Equal(t, []string{"E", "E", "E"}, stored.Answers)
	exam, err := st.GetExam(id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), exam.Revision)
}
