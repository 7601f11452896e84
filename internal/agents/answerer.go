package agents

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/evalforge/internal/models"
)

// ErrInvalidArgument is returned when an answer capability is called with
// input it cannot answer, such as an empty option list.
var ErrInvalidArgument = errors.New("invalid argument")

//go:generate go tool mockgen -package agents -destination mock_answerer.go . Answerer

// Answerer is the capability to answer a multiple-choice question.
// Implementations must return one of the supplied options under normal
// operation.
type Answerer interface {
	Ask(ctx context.Context, text string, options []string) (string, error)
}

// AnswererFunc adapts a function to the Answerer interface.
type AnswererFunc func(ctx context.Context, text string, options []string) (string, error)

func (f AnswererFunc) Ask(ctx context.Context, text string, options []string) (string, error) {
	return f(ctx, text, options)
}

func checkOptions(options []string) error {
	if len(options) == 0 {
		return fmt.Errorf("%w: no options supplied", ErrInvalidArgument)
	}
	return nil
}

// FirstOption always answers with the first option. It is the default
// answerer for stub and local models.
type FirstOption struct{}

func (FirstOption) Ask(ctx context.Context, _ string, options []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkOptions(options); err != nil {
		return "", err
	}
	return options[0], nil
}

// Scripted answers from a fixed question-text to answer table and falls back
// to the first option for unknown questions.
type Scripted struct {
	Answers map[string]string
}

func (s *Scripted) Ask(ctx context.Context, text string, options []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkOptions(options); err != nil {
		return "", err
	}
	if a, ok := s.Answers[text]; ok {
		return a, nil
	}
	return options[0], nil
}

// Random picks an option uniformly at random. A seeded Random draws from a
// source derived from the seed and the question, so each question gets the
// same answer regardless of the order questions are asked in.
type Random struct {
	seed   int64
	seeded bool

	mu  sync.Mutex
	rng *rand.Rand // unseeded only
}

// NewRandom creates a Random answerer. A negative seed uses a non-deterministic source.
func NewRandom(seed int64) *Random {
	if seed >= 0 {
		return &Random{seed: seed, seeded: true}
	}
	return &Random{rng: newRand(seed)}
}

func (r *Random) Ask(ctx context.Context, text string, options []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkOptions(options); err != nil {
		return "", err
	}
	if r.seeded {
		rng := rand.New(rand.NewSource(r.seed ^ questionKey(text, options)))
		return options[rng.Intn(len(options))], nil
	}
	r.mu.Lock()
	idx := r.rng.Intn(len(options))
	r.mu.Unlock()
	return options[idx], nil
}

// questionKey hashes the question text and options.
func questionKey(text string, options []string) int64 {
	h := fnv.New64a()
	h.Write([]byte(text)) //nolint:errcheck
	for _, o := range options {
		h.Write([]byte{0}) //nolint:errcheck
		h.Write([]byte(o)) //nolint:errcheck
	}
	return int64(h.Sum64())
}

func newRand(seed int64) *rand.Rand {
	if seed >= 0 {
		return rand.New(rand.NewSource(seed))
	}
	return rand.New(rand.NewSource(rand.Int63()))
}

// NewAnswerer creates an answerer for the given model type. params carries
// type-specific settings, e.g. "answers" for scripted models or "seed" for
// random models.
func NewAnswerer(kind string, params map[string]any) (Answerer, error) {
	switch kind {
	case "", models.ModelTypeStub, models.ModelTypeLocal:
		return FirstOption{}, nil
	case models.ModelTypeScripted:
		var v struct {
			Answers map[string]string `mapstructure:"answers"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding scripted params: %w", err)
		}
		return &Scripted{Answers: v.Answers}, nil
	case models.ModelTypeRandom:
		v := struct {
			Seed int64 `mapstructure:"seed"`
		}{Seed: -1}
		if err := mapstructure.WeakDecode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding random params: %w", err)
		}
		return NewRandom(v.Seed), nil
	default:
		return nil, fmt.Errorf("%w: '%s' is not a valid model type", ErrInvalidArgument, kind)
	}
}
