// Package evaluation runs models against question sets and aggregates their
// per-model accuracy and per-question answers.
package evaluation

import (
	"context"
	"log/slog"
	"time"

	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when Options.Workers is not positive.
const DefaultWorkers = 4

// AnswerEvent is emitted after each (question, model) pair has been answered.
type AnswerEvent struct {
	QuestionID int64
	ModelID    int64
	ModelName  string
	Answer     string
	Correct    bool
	Err        error
	Duration   time.Duration
}

// Options configures an Evaluator.
type Options struct {
	// Workers bounds the number of concurrent answer calls. 1 runs pairs
	// sequentially, questions outer and models inner.
	Workers int
	// Timeout bounds each individual answer call, including retries. Zero disables it.
	Timeout time.Duration
	// OnAnswer, if set, is called once per answered pair. It may be called
	// from multiple goroutines.
	OnAnswer func(AnswerEvent)
	Logger   *slog.Logger
}

// Evaluator aggregates model answers into an EvaluationResult.
type Evaluator struct {
	opts Options
}

// New creates an Evaluator.
func New(opts Options) *Evaluator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Evaluator{opts: opts}
}

type cell struct {
	answer  string
	correct bool
	err     error
}

// Evaluate asks every model every question once (plus the model's retries)
// and tallies the answers. Output order follows input order regardless of
// the order in which answers complete. An answer outside the option set is
// counted as incorrect; a failed answer is recorded with its error and
// counted as incorrect. Only context cancellation aborts the evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, agentList []*agents.ModelAgent, questions []models.Question) (*models.EvaluationResult, error) {
	agentList = dedupe(agentList)

	grid := make([][]cell, len(questions))
	for i := range grid {
		grid[i] = make([]cell, len(agentList))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for qi := range questions {
		for mi := range agentList {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				grid[qi][mi] = e.ask(gctx, agentList[mi], &questions[qi])
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return tally(agentList, questions, grid), nil
}

func (e *Evaluator) ask(ctx context.Context, agent *agents.ModelAgent, q *models.Question) cell {
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := agent.Ask(ctx, q.Text, q.Options)
	c := cell{answer: answer, err: err}
	if err != nil {
		c.answer = ""
		e.opts.Logger.Warn("model failed to answer",
			"model", agent.Name, "modelID", agent.ID, "questionID", q.ID, "error", err)
	} else {
		c.correct = q.IsCorrect(answer)
	}

	if e.opts.OnAnswer != nil {
		e.opts.OnAnswer(AnswerEvent{
			QuestionID: q.ID,
			ModelID:    agent.ID,
			ModelName:  agent.Name,
			Answer:     c.answer,
			Correct:    c.correct,
			Err:        err,
			Duration:   time.Since(start),
		})
	}
	return c
}

func tally(agentList []*agents.ModelAgent, questions []models.Question, grid [][]cell) *models.EvaluationResult {
	stats := make([]models.ModelStats, len(agentList))
	for mi, a := range agentList {
		stats[mi] = models.ModelStats{ID: a.ID, Name: a.Name}
	}

	results := make([]models.QuestionResult, 0, len(questions))
	for qi, q := range questions {
		qr := models.QuestionResult{
			ID:      q.ID,
			Answers: make(map[int64]string, len(agentList)),
			Correct: q.Correct,
		}
		for mi, a := range agentList {
			c := grid[qi][mi]
			qr.Answers[a.ID] = c.answer
			if c.err != nil {
				if qr.Errors == nil {
					qr.Errors = make(map[int64]string)
				}
				qr.Errors[a.ID] = c.err.Error()
			}
			stats[mi].Total++
			if c.correct {
				stats[mi].Correct++
			}
		}
		results = append(results, qr)
	}

	for i := range stats {
		stats[i].Accuracy = models.Accuracy(stats[i].Correct, stats[i].Total)
	}

	return &models.EvaluationResult{Models: stats, Questions: results}
}

// dedupe keeps the first agent for each model ID.
func dedupe(agentList []*agents.ModelAgent) []*agents.ModelAgent {
	seen := make(map[int64]bool, len(agentList))
	out := make([]*agents.ModelAgent, 0, len(agentList))
	for _, a := range agentList {
		if a == nil || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}
