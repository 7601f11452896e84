package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spboyer/evalforge/internal/models"
)

// Memory is an in-process Store. Data is lost when the process exits.
type Memory struct {
	questionSeq atomic.Int64
	modelSeq    atomic.Int64

	mu          sync.RWMutex
	questions   map[int64]models.Question
	models      map[int64]models.Model
	evaluations map[string]models.Evaluation
	results     map[string]*models.EvaluationResult
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		questions:   make(map[int64]models.Question),
		models:      make(map[int64]models.Model),
		evaluations: make(map[string]models.Evaluation),
		results:     make(map[string]*models.EvaluationResult),
	}
}

func (m *Memory) CreateQuestion(_ context.Context, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is required")
	}
	q.ID = m.questionSeq.Add(1)
	stored := *q
	stored.Options = slices.Clone(q.Options)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = stored
	return nil
}

func (m *Memory) GetQuestion(_ context.Context, id int64) (*models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	q.Options = slices.Clone(q.Options)
	return &q, nil
}

func (m *Memory) ListQuestions(_ context.Context, filter QuestionFilter) ([]models.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Question, 0, len(m.questions))
	for _, q := range m.questions {
		if len(filter.KnowledgeUnits) > 0 && !slices.Contains(filter.KnowledgeUnits, q.KnowledgeUnit) {
			continue
		}
		q.Options = slices.Clone(q.Options)
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit := filter.limit(); limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteQuestion(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[id]; !ok {
		return ErrNotFound
	}
	delete(m.questions, id)
	return nil
}

func (m *Memory) CreateModel(_ context.Context, model *models.Model) error {
	if model == nil {
		return fmt.Errorf("model is required")
	}
	model.ID = m.modelSeq.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[model.ID] = cloneModel(*model)
	return nil
}

func (m *Memory) GetModel(_ context.Context, id int64) (*models.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	model, ok := m.models[id]
	if !ok {
		return nil, ErrNotFound
	}
	model = cloneModel(model)
	return &model, nil
}

func (m *Memory) ListModels(_ context.Context) ([]models.Model, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Model, 0, len(m.models))
	for _, model := range m.models {
		out = append(out, cloneModel(model))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateEvaluation(_ context.Context, ev *models.Evaluation) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("evaluation id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.evaluations[ev.ID]; exists {
		return fmt.Errorf("evaluation %q already exists", ev.ID)
	}
	m.evaluations[ev.ID] = cloneEvaluation(*ev)
	return nil
}

func (m *Memory) GetEvaluation(_ context.Context, id string) (*models.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.evaluations[id]
	if !ok {
		return nil, ErrNotFound
	}
	ev = cloneEvaluation(ev)
	return &ev, nil
}

func (m *Memory) UpdateEvaluation(_ context.Context, ev *models.Evaluation) error {
	if ev == nil {
		return fmt.Errorf("evaluation is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[ev.ID]; !ok {
		return ErrNotFound
	}
	m.evaluations[ev.ID] = cloneEvaluation(*ev)
	return nil
}

func (m *Memory) SaveResult(_ context.Context, id string, result *models.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.evaluations[id]; !ok {
		return ErrNotFound
	}
	m.results[id] = cloneResult(result)
	return nil
}

func (m *Memory) GetResult(_ context.Context, id string) (*models.EvaluationResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneResult(r), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// Stored values never share maps or slices with callers.

func cloneModel(model models.Model) models.Model {
	model.Params = maps.Clone(model.Params)
	return model
}

func cloneEvaluation(ev models.Evaluation) models.Evaluation {
	ev.ModelIDs = slices.Clone(ev.ModelIDs)
	ev.KnowledgeUnits = slices.Clone(ev.KnowledgeUnits)
	if ev.EndTime != nil {
		end := *ev.EndTime
		ev.EndTime = &end
	}
	return ev
}

func cloneResult(r *models.EvaluationResult) *models.EvaluationResult {
	if r == nil {
		return nil
	}
	out := &models.EvaluationResult{
		Models:    slices.Clone(r.Models),
		Questions: make([]models.QuestionResult, len(r.Questions)),
	}
	for i, q := range r.Questions {
		q.Answers = maps.Clone(q.Answers)
		q.Errors = maps.Clone(q.Errors)
		out.Questions[i] = q
	}
	if r.Questions == nil {
		out.Questions = nil
	}
	return out
}

// Ensure Memory satisfies Store.
var _ Store = (*Memory)(nil)
