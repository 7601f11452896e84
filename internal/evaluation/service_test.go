package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/metrics"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 2, 18, 15, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, rec *metrics.Recorder) (*Service, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	svc := NewService(s, ServiceOptions{
		Metrics:       rec,
		BenchmarkSeed: 42,
		Now:           func() time.Time { return fixedNow },
		NewID:         func() string { return "run-1" },
	})
	return svc, s
}

func seed(t *testing.T, s *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateModel(ctx, &models.Model{Name: "m1", Type: models.ModelTypeLocal, Status: models.ModelStatusActive}))
	require.NoError(t, s.CreateQuestion(ctx, &models.Question{
		Text: "Sample?", Options: []string{"yes", "no"}, Correct: "yes", KnowledgeUnit: "Networking",
	}))
}

func TestServiceCreateCompletes(t *testing.T) {
	rec := metrics.NewRecorder()
	svc, s := newTestService(t, rec)
	seed(t, s)
	ctx := context.Background()

	ev, err := svc.Create(ctx, Request{ModelIDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, "run-1", ev.ID)
	assert.Equal(t, models.EvaluationCompleted, ev.Status)
	assert.Equal(t, DefaultMode, ev.Mode)
	assert.Equal(t, 1, ev.QuestionCount)
	require.NotNil(t, ev.EndTime)

	stored, err := svc.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationCompleted, stored.Status)

	result, err := svc.Result(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, result.Models, 1)
	assert.Equal(t, int64(1), result.Models[0].ID)
	assert.Equal(t, 1.0, result.Models[0].Accuracy)
	require.Len(t, result.Questions, 1)

	summary, err := svc.Summary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.Summary{ModelCount: 1, AverageAccuracy: 1}, summary)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.EvaluationCounter.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.AnswerCounter.WithLabelValues("m1", "correct")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.ModelAccuracy.WithLabelValues("m1")))
}

func TestServiceCreateScopesQuestions(t *testing.T) {
	svc, s := newTestService(t, nil)
	seed(t, s)
	ctx := context.Background()
	for _, ku := range []string{"Cryptography", "Networking"} {
		require.NoError(t, s.CreateQuestion(ctx, &models.Question{
			Text: ku + "?", Options: []string{"A", "B"}, Correct: "B", KnowledgeUnit: ku,
		}))
	}

	_, err := svc.Create(ctx, Request{ModelIDs: []int64{1}, KnowledgeUnits: []string{"Networking"}, QuestionCount: 5, Mode: "auto"})
	require.NoError(t, err)

	ev, err := svc.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "auto", ev.Mode)
	assert.Equal(t, 2, ev.QuestionCount)

	result, err := svc.Result(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Models[0].Total)
	assert.Equal(t, 0.5, result.Models[0].Accuracy)
}

func TestServiceCreateErrors(t *testing.T) {
	svc, s := newTestService(t, nil)
	seed(t, s)
	ctx := context.Background()

	_, err := svc.Create(ctx, Request{})
	assert.ErrorIs(t, err, agents.ErrInvalidArgument)

	_, err = svc.Create(ctx, Request{ModelIDs: []int64{1}, QuestionCount: -1})
	assert.ErrorIs(t, err, agents.ErrInvalidArgument)

	_, err = svc.Create(ctx, Request{ModelIDs: []int64{1, 99}})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateModel(ctx, &models.Model{Name: "bad", Type: "gpt-9000"}))
	_, err = svc.Create(ctx, Request{ModelIDs: []int64{2}})
	assert.ErrorIs(t, err, agents.ErrInvalidArgument)

	_, err = svc.Get(ctx, "run-1")
	assert.ErrorIs(t, err, store.ErrNotFound, "rejected requests must not leave a run behind")
}

func TestServiceCreateCancelledRunFails(t *testing.T) {
	rec := metrics.NewRecorder()
	svc, s := newTestService(t, rec)
	seed(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Model and question lookups ignore cancellation in the memory store, so
	// the run is created and then fails inside the aggregator.
	ev, err := svc.Create(ctx, Request{ModelIDs: []int64{1}})
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationFailed, ev.Status)
	assert.Contains(t, ev.Error, context.Canceled.Error())

	stored, err := svc.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationFailed, stored.Status)

	_, err = svc.Result(context.Background(), ev.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.EvaluationCounter.WithLabelValues("failed")))
}

func TestServiceTestModelAndBenchmark(t *testing.T) {
	svc, s := newTestService(t, nil)
	seed(t, s)
	ctx := context.Background()

	require.NoError(t, svc.TestModel(ctx, 1))
	assert.ErrorIs(t, svc.TestModel(ctx, 42), store.ErrNotFound)

	res, err := svc.Benchmark(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ModelID)
	assert.GreaterOrEqual(t, res.Score, 0.0)
	assert.Less(t, res.Score, 1.0)

	_, err = svc.Benchmark(ctx, 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestServiceOnAnswerChained(t *testing.T) {
	s := store.NewMemory()
	seed(t, s)

	var seen []AnswerEvent
	svc := NewService(s, ServiceOptions{
		Evaluator: Options{Workers: 1, OnAnswer: func(ev AnswerEvent) { seen = append(seen, ev) }},
	})

	ev, err := svc.Create(context.Background(), Request{ModelIDs: []int64{1}})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	require.Len(t, seen, 1)
	assert.Equal(t, "yes", seen[0].Answer)
}
