package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spboyer/evalforge/internal/models"
)

// Defaults applied to models that do not carry their own settings.
const (
	DefaultMaxRetries     = 2
	DefaultResponseFormat = models.ResponseFormatLetter
	DefaultRetryDelay     = 200 * time.Millisecond
)

// ModelAgent wraps an Answerer with the model's identity and retry budget.
type ModelAgent struct {
	ID             int64
	Name           string
	MaxRetries     int
	ResponseFormat models.ResponseFormat
	RetryDelay     time.Duration
	Answerer       Answerer
}

// NewModelAgent returns an agent backed by the first-option stub.
func NewModelAgent(id int64, name string) *ModelAgent {
	return &ModelAgent{
		ID:             id,
		Name:           name,
		MaxRetries:     DefaultMaxRetries,
		ResponseFormat: DefaultResponseFormat,
		RetryDelay:     DefaultRetryDelay,
		Answerer:       FirstOption{},
	}
}

// FromModel builds an agent for a stored model, resolving its answerer from
// the model type.
func FromModel(m models.Model) (*ModelAgent, error) {
	answerer, err := NewAnswerer(m.Type, m.Params)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", m.ID, err)
	}
	format := m.ResponseFormat
	if format == "" {
		format = DefaultResponseFormat
	}
	return &ModelAgent{
		ID:             m.ID,
		Name:           m.Name,
		MaxRetries:     m.MaxRetries,
		ResponseFormat: format,
		RetryDelay:     DefaultRetryDelay,
		Answerer:       answerer,
	}, nil
}

// Ask answers a question, retrying failed attempts up to MaxRetries times.
// Invalid-argument errors and context cancellation are never retried.
func (a *ModelAgent) Ask(ctx context.Context, text string, options []string) (string, error) {
	if a.Answerer == nil {
		return "", fmt.Errorf("model %d has no answerer", a.ID)
	}

	retries := max(a.MaxRetries, 0)
	var answer string
	err := retry.Do(
		func() error {
			var err error
			answer, err = a.Answerer.Ask(ctx, text, options)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(retries+1)),
		retry.Delay(a.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrInvalidArgument) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
	)
	if err != nil {
		return "", err
	}
	return answer, nil
}
