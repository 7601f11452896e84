// Package store persists questions, models, evaluation runs and their results.
package store

import (
	"context"
	"errors"

	"github.com/spboyer/evalforge/internal/models"
)

// ErrNotFound is returned when an ID does not match any stored record.
var ErrNotFound = errors.New("not found")

// DefaultQuestionLimit caps question listings when no limit is given.
const DefaultQuestionLimit = 100

// QuestionFilter narrows a question listing.
type QuestionFilter struct {
	// KnowledgeUnits keeps only questions whose KU is listed, when non-empty.
	KnowledgeUnits []string
	// Limit caps the number of questions returned. Zero means DefaultQuestionLimit,
	// negative means no limit.
	Limit int
}

func (f QuestionFilter) limit() int {
	if f.Limit == 0 {
		return DefaultQuestionLimit
	}
	return f.Limit
}

// QuestionStore persists questions.
type QuestionStore interface {
	// CreateQuestion assigns q an ID and stores it.
	CreateQuestion(ctx context.Context, q *models.Question) error
	GetQuestion(ctx context.Context, id int64) (*models.Question, error)
	// ListQuestions returns questions in ascending ID order.
	ListQuestions(ctx context.Context, filter QuestionFilter) ([]models.Question, error)
	DeleteQuestion(ctx context.Context, id int64) error
}

// ModelStore persists registered models.
type ModelStore interface {
	// CreateModel assigns m an ID and stores it.
	CreateModel(ctx context.Context, m *models.Model) error
	GetModel(ctx context.Context, id int64) (*models.Model, error)
	// ListModels returns models in ascending ID order.
	ListModels(ctx context.Context) ([]models.Model, error)
}

// EvaluationStore persists evaluation runs and their results.
type EvaluationStore interface {
	CreateEvaluation(ctx context.Context, ev *models.Evaluation) error
	GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error)
	UpdateEvaluation(ctx context.Context, ev *models.Evaluation) error
	SaveResult(ctx context.Context, id string, result *models.EvaluationResult) error
	GetResult(ctx context.Context, id string) (*models.EvaluationResult, error)
}

// Store groups all storage dependencies.
type Store interface {
	QuestionStore
	ModelStore
	EvaluationStore
	Close() error
}
