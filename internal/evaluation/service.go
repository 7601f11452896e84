package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/metrics"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/store"
)

// DefaultMode is recorded on runs that do not ask for a specific mode.
const DefaultMode = "peer"

// ProbeQuestion is asked when a single model is tested for reachability.
var ProbeQuestion = models.Question{
	Text:    "Which option is first?",
	Options: []string{"A", "B", "C", "D"},
	Correct: "A",
}

// Request describes an evaluation run to start.
type Request struct {
	ModelIDs []int64
	// KnowledgeUnits restricts the question set when non-empty.
	KnowledgeUnits []string
	// QuestionCount caps the number of questions. Zero uses every matching question.
	QuestionCount int
	Mode          string
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Evaluator   Options
	Metrics     *metrics.Recorder
	Analytics   agents.Analytics
	DefaultMode string
	// BenchmarkSeed seeds benchmark scores. Negative is non-deterministic.
	BenchmarkSeed int64
	Logger        *slog.Logger
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Service runs evaluations against stored models and questions and keeps
// track of each run and its result.
type Service struct {
	store     store.Store
	evaluator *Evaluator
	metrics   *metrics.Recorder
	analytics agents.Analytics
	benchmark *agents.Benchmark
	mode      string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService creates a Service over s.
func NewService(s store.Store, opts ServiceOptions) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = DefaultMode
	}

	evalOpts := opts.Evaluator
	if evalOpts.Logger == nil {
		evalOpts.Logger = opts.Logger
	}
	onAnswer := evalOpts.OnAnswer
	rec := opts.Metrics
	evalOpts.OnAnswer = func(ev AnswerEvent) {
		rec.Answer(ev.ModelName, ev.Correct, ev.Err, ev.Duration)
		if onAnswer != nil {
			onAnswer(ev)
		}
	}

	return &Service{
		store:     s,
		evaluator: New(evalOpts),
		metrics:   rec,
		analytics: opts.Analytics,
		benchmark: agents.NewBenchmark(opts.BenchmarkSeed),
		mode:      opts.DefaultMode,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Create starts an evaluation run and drives it to completion. The returned
// run is completed, or failed with its error recorded when the aggregator
// could not finish. An error is returned only when the request is invalid
// or the run could not be stored.
func (s *Service) Create(ctx context.Context, req Request) (*models.Evaluation, error) {
	if len(req.ModelIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one model id is required", agents.ErrInvalidArgument)
	}
	if req.QuestionCount < 0 {
		return nil, fmt.Errorf("%w: question_count must not be negative", agents.ErrInvalidArgument)
	}

	agentList, err := s.resolveAgents(ctx, req.ModelIDs)
	if err != nil {
		return nil, err
	}

	limit := req.QuestionCount
	if limit == 0 {
		limit = -1
	}
	questions, err := s.store.ListQuestions(ctx, store.QuestionFilter{KnowledgeUnits: req.KnowledgeUnits, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}

	mode := req.Mode
	if mode == "" {
		mode = s.mode
	}
	ev := &models.Evaluation{
		ID:             s.newID(),
		Status:         models.EvaluationStarted,
		ModelIDs:       req.ModelIDs,
		KnowledgeUnits: req.KnowledgeUnits,
		QuestionCount:  len(questions),
		Mode:           mode,
		StartTime:      s.now().UTC(),
	}
	if err := s.store.CreateEvaluation(ctx, ev); err != nil {
		return nil, fmt.Errorf("creating evaluation: %w", err)
	}
	s.logger.Info("evaluation started", "id", ev.ID, "models", len(agentList), "questions", len(questions))

	result, runErr := s.evaluator.Evaluate(ctx, agentList, questions)
	if runErr == nil {
		if err := s.store.SaveResult(ctx, ev.ID, result); err != nil {
			runErr = fmt.Errorf("saving result: %w", err)
		}
	}

	ev.Finish(s.now().UTC(), runErr)
	// The request context may already be cancelled; the final state must still land.
	if err := s.store.UpdateEvaluation(context.WithoutCancel(ctx), ev); err != nil {
		return nil, fmt.Errorf("updating evaluation: %w", err)
	}
	s.metrics.Evaluation(string(ev.Status))

	if runErr != nil {
		s.logger.Error("evaluation failed", "id", ev.ID, "error", runErr)
		return ev, nil
	}
	for _, m := range result.Models {
		s.metrics.Accuracy(m.Name, m.Accuracy)
	}
	s.logger.Info("evaluation completed", "id", ev.ID, "duration", ev.EndTime.Sub(ev.StartTime))
	return ev, nil
}

func (s *Service) resolveAgents(ctx context.Context, ids []int64) ([]*agents.ModelAgent, error) {
	out := make([]*agents.ModelAgent, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		agent, err := s.agent(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, agent)
	}
	return out, nil
}

func (s *Service) agent(ctx context.Context, id int64) (*agents.ModelAgent, error) {
	m, err := s.store.GetModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", id, err)
	}
	return agents.FromModel(*m)
}

// Get returns the run record for id.
func (s *Service) Get(ctx context.Context, id string) (*models.Evaluation, error) {
	return s.store.GetEvaluation(ctx, id)
}

// Result returns the aggregate result of a finished run.
func (s *Service) Result(ctx context.Context, id string) (*models.EvaluationResult, error) {
	return s.store.GetResult(ctx, id)
}

// Summary returns the analytics digest of a finished run.
func (s *Service) Summary(ctx context.Context, id string) (models.Summary, error) {
	result, err := s.store.GetResult(ctx, id)
	if err != nil {
		return models.Summary{}, err
	}
	return s.analytics.Summary(result), nil
}

// TestModel asks a stored model the probe question.
func (s *Service) TestModel(ctx context.Context, id int64) error {
	agent, err := s.agent(ctx, id)
	if err != nil {
		return err
	}
	answer, err := agent.Ask(ctx, ProbeQuestion.Text, ProbeQuestion.Options)
	if err != nil {
		return fmt.Errorf("model %d did not answer: %w", id, err)
	}
	s.logger.Debug("model probe answered", "model", agent.Name, "answer", answer)
	return nil
}

// Benchmark scores a stored model.
func (s *Service) Benchmark(ctx context.Context, id int64) (models.BenchmarkResult, error) {
	agent, err := s.agent(ctx, id)
	if err != nil {
		return models.BenchmarkResult{}, err
	}
	return s.benchmark.Run(agent), nil
}
