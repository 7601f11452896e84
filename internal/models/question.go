package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidQuestion is returned by Question.Validate for malformed questions.
var ErrInvalidQuestion = errors.New("invalid question")

// DefaultKnowledgeUnits are the categories offered when none are configured.
var DefaultKnowledgeUnits = []string{"Networking", "Cryptography", "Threat Analysis"}

// Question is a multiple-choice question with a single correct option.
type Question struct {
	ID            int64    `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	Correct       string   `json:"correct"`
	KnowledgeUnit string   `json:"ku"`
}

// Validate checks that the question has text, at least two distinct options,
// and that Correct is one of the options.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: at least 2 options are required, got %d", ErrInvalidQuestion, len(q.Options))
	}
	seen := make(map[string]bool, len(q.Options))
	for i, o := range q.Options {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidQuestion, i+1)
		}
		if seen[o] {
			return fmt.Errorf("%w: duplicate option %q", ErrInvalidQuestion, o)
		}
		seen[o] = true
	}
	if !slices.Contains(q.Options, q.Correct) {
		return fmt.Errorf("%w: correct answer %q is not one of the options", ErrInvalidQuestion, q.Correct)
	}
	return nil
}

// IsCorrect reports whether answer matches the correct option exactly.
func (q *Question) IsCorrect(answer string) bool {
	return answer == q.Correct
}

// Review is the outcome of a curation pass over a question.
type Review struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}
