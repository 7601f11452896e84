package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agent(id int64, name string, a agents.Answerer) *agents.ModelAgent {
	return &agents.ModelAgent{ID: id, Name: name, Answerer: a, RetryDelay: time.Millisecond}
}

func question(id int64, correct string, options ...string) models.Question {
	return models.Question{ID: id, Text: "Q?", Options: options, Correct: correct}
}

func TestEvaluateFirstOptionScenario(t *testing.T) {
	e := New(Options{})
	m := agent(1, "m1", agents.FirstOption{})

	result, err := e.Evaluate(context.Background(), []*agents.ModelAgent{m},
		[]models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)
	require.Len(t, result.Models, 1)
	assert.Equal(t, 1.0, result.Models[0].Accuracy)
	assert.Equal(t, "A", result.Questions[0].Answers[1])

	result, err = e.Evaluate(context.Background(), []*agents.ModelAgent{m},
		[]models.Question{question(1, "A", "B", "A")})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Models[0].Accuracy)
	assert.Equal(t, "B", result.Questions[0].Answers[1])
	assert.Equal(t, "A", result.Questions[0].Correct)
}

func TestEvaluateTotalsAndBounds(t *testing.T) {
	questions := []models.Question{
		question(1, "A", "A", "B"),
		question(2, "B", "A", "B"),
		question(3, "C", "A", "B", "C"),
	}
	list := []*agents.ModelAgent{
		agent(1, "first", agents.FirstOption{}),
		agent(2, "random", agents.NewRandom(7)),
		agent(3, "scripted", &agents.Scripted{Answers: map[string]string{"Q?": "B"}}),
	}

	result, err := New(Options{Workers: 3}).Evaluate(context.Background(), list, questions)
	require.NoError(t, err)

	require.Len(t, result.Models, 3)
	require.Len(t, result.Questions, 3)
	for _, m := range result.Models {
		assert.Equal(t, len(questions), m.Total)
		assert.LessOrEqual(t, m.Correct, m.Total)
		assert.GreaterOrEqual(t, m.Accuracy, 0.0)
		assert.LessOrEqual(t, m.Accuracy, 1.0)
		assert.InDelta(t, float64(m.Correct)/float64(m.Total), m.Accuracy, 1e-9)
	}
	for _, q := range result.Questions {
		assert.Len(t, q.Answers, 3)
	}
	assert.Equal(t, 1, result.Models[0].Correct)
	assert.Equal(t, 1, result.Models[2].Correct)
}

func TestEvaluateOutOfOptionAnswerIsIncorrect(t *testing.T) {
	off := agents.AnswererFunc(func(context.Context, string, []string) (string, error) {
		return "Z", nil
	})
	result, err := New(Options{}).Evaluate(context.Background(),
		[]*agents.ModelAgent{agent(1, "off", off)},
		[]models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)
	assert.Equal(t, "Z", result.Questions[0].Answers[1])
	assert.Equal(t, 0, result.Models[0].Correct)
	assert.Equal(t, 1, result.Models[0].Total)
}

func TestEvaluateEmptyInputs(t *testing.T) {
	e := New(Options{})

	result, err := e.Evaluate(context.Background(), nil, []models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)
	assert.Empty(t, result.Models)
	require.Len(t, result.Questions, 1)
	assert.Empty(t, result.Questions[0].Answers)

	result, err = e.Evaluate(context.Background(), []*agents.ModelAgent{agent(1, "m", agents.FirstOption{})}, nil)
	require.NoError(t, err)
	require.Len(t, result.Models, 1)
	assert.Equal(t, 0, result.Models[0].Total)
	assert.Equal(t, 0.0, result.Models[0].Accuracy)
	assert.Empty(t, result.Questions)
}

func TestEvaluatePreservesOrderUnderConcurrency(t *testing.T) {
	// Later models answer first so completion order differs from input order.
	slow := func(d time.Duration) agents.Answerer {
		return agents.AnswererFunc(func(ctx context.Context, _ string, options []string) (string, error) {
			time.Sleep(d)
			return options[0], nil
		})
	}
	list := []*agents.ModelAgent{
		agent(30, "c", slow(15*time.Millisecond)),
		agent(10, "a", slow(5*time.Millisecond)),
		agent(20, "b", slow(0)),
	}
	questions := []models.Question{
		question(9, "A", "A", "B"),
		question(3, "A", "A", "B"),
		question(5, "B", "A", "B"),
	}

	result, err := New(Options{Workers: 8}).Evaluate(context.Background(), list, questions)
	require.NoError(t, err)

	var modelIDs, questionIDs []int64
	for _, m := range result.Models {
		modelIDs = append(modelIDs, m.ID)
	}
	for _, q := range result.Questions {
		questionIDs = append(questionIDs, q.ID)
	}
	assert.Equal(t, []int64{30, 10, 20}, modelIDs)
	assert.Equal(t, []int64{9, 3, 5}, questionIDs)
}

func TestEvaluateSequentialWithOneWorker(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(name string) agents.Answerer {
		return agents.AnswererFunc(func(_ context.Context, text string, options []string) (string, error) {
			mu.Lock()
			order = append(order, text+"/"+name)
			mu.Unlock()
			return options[0], nil
		})
	}
	list := []*agents.ModelAgent{agent(1, "m1", record("m1")), agent(2, "m2", record("m2"))}
	questions := []models.Question{
		{ID: 1, Text: "q1", Options: []string{"A", "B"}, Correct: "A"},
		{ID: 2, Text: "q2", Options: []string{"A", "B"}, Correct: "A"},
	}

	_, err := New(Options{Workers: 1}).Evaluate(context.Background(), list, questions)
	require.NoError(t, err)
	assert.Equal(t, []string{"q1/m1", "q1/m2", "q2/m1", "q2/m2"}, order)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	list := []*agents.ModelAgent{
		agent(1, "first", agents.FirstOption{}),
		agent(2, "scripted", &agents.Scripted{Answers: map[string]string{"Q?": "B"}}),
	}
	questions := []models.Question{question(1, "A", "A", "B"), question(2, "B", "A", "B")}

	e := New(Options{Workers: 4})
	first, err := e.Evaluate(context.Background(), list, questions)
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), list, questions)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEvaluateSeededRandomIsReproducibleAcrossWorkers(t *testing.T) {
	questions := make([]models.Question, 200)
	for i := range questions {
		questions[i] = models.Question{
			ID:      int64(i + 1),
			Text:    fmt.Sprintf("Question %d?", i+1),
			Options: []string{"A", "B", "C", "D"},
			Correct: "A",
		}
	}
	run := func() *models.EvaluationResult {
		m, err := agents.FromModel(models.Model{ID: 1, Name: "guesser", Type: models.ModelTypeRandom, Params: map[string]any{"seed": 7}})
		require.NoError(t, err)
		result, err := New(Options{Workers: 4}).Evaluate(context.Background(), []*agents.ModelAgent{m}, questions)
		require.NoError(t, err)
		return result
	}

	first := run()
	distinct := make(map[string]bool)
	for _, q := range first.Questions {
		distinct[q.Answers[1]] = true
	}
	assert.Greater(t, len(distinct), 1, "seeded answers should still vary across questions")

	for i := 0; i < 10; i++ {
		assert.Equal(t, first, run(), "run %d differs", i+1)
	}
}

func TestEvaluateDuplicateModelsCollapse(t *testing.T) {
	m := agent(1, "m1", agents.FirstOption{})
	result, err := New(Options{}).Evaluate(context.Background(),
		[]*agents.ModelAgent{m, agent(2, "m2", agents.FirstOption{}), m},
		[]models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)
	require.Len(t, result.Models, 2)
	assert.Equal(t, int64(1), result.Models[0].ID)
	assert.Equal(t, 1, result.Models[0].Total)
}

func TestEvaluateRecordsAnswerErrors(t *testing.T) {
	var calls atomic.Int32
	failing := agents.AnswererFunc(func(context.Context, string, []string) (string, error) {
		calls.Add(1)
		return "", errors.New("model offline")
	})
	m := agent(1, "broken", failing)
	m.MaxRetries = 1

	var events []AnswerEvent
	var mu sync.Mutex
	e := New(Options{OnAnswer: func(ev AnswerEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}})

	result, err := e.Evaluate(context.Background(), []*agents.ModelAgent{m, agent(2, "ok", agents.FirstOption{})},
		[]models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	qr := result.Questions[0]
	assert.Equal(t, "", qr.Answers[1])
	assert.Contains(t, qr.Errors[1], "model offline")
	assert.NotContains(t, qr.Errors, int64(2))
	assert.Equal(t, 1, result.Models[0].Total)
	assert.Equal(t, 0, result.Models[0].Correct)
	assert.Equal(t, 1, result.Models[1].Correct)

	require.Len(t, events, 2)
	for _, ev := range events {
		if ev.ModelID == 1 {
			assert.Error(t, ev.Err)
			assert.Equal(t, "broken", ev.ModelName)
		} else {
			assert.True(t, ev.Correct)
		}
	}
}

func TestEvaluateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Evaluate(ctx,
		[]*agents.ModelAgent{agent(1, "m1", agents.FirstOption{})},
		[]models.Question{question(1, "A", "A", "B")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluatePerCallTimeout(t *testing.T) {
	hang := agents.AnswererFunc(func(ctx context.Context, _ string, _ []string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	result, err := New(Options{Timeout: 10 * time.Millisecond}).Evaluate(context.Background(),
		[]*agents.ModelAgent{agent(1, "slow", hang)},
		[]models.Question{question(1, "A", "A", "B")})
	require.NoError(t, err)
	assert.Contains(t, result.Questions[0].Errors[1], context.DeadlineExceeded.Error())
	assert.Equal(t, 0, result.Models[0].Correct)
}
