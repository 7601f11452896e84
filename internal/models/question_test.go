package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       Question
		wantErr string
	}{
		{
			name: "valid",
			q:    Question{Text: "Q?", Options: []string{"A", "B"}, Correct: "A", KnowledgeUnit: "Networking"},
		},
		{
			name:    "missing text",
			q:       Question{Text: "  ", Options: []string{"A", "B"}, Correct: "A"},
			wantErr: "text is required",
		},
		{
			name:    "single option",
			q:       Question{Text: "Q?", Options: []string{"A"}, Correct: "A"},
			wantErr: "at least 2 options",
		},
		{
			name:    "empty option",
			q:       Question{Text: "Q?", Options: []string{"A", ""}, Correct: "A"},
			wantErr: "option 2 is empty",
		},
		{
			name:    "duplicate option",
			q:       Question{Text: "Q?", Options: []string{"A", "A"}, Correct: "A"},
			wantErr: "duplicate option",
		},
		{
			name:    "correct not in options",
			q:       Question{Text: "Q?", Options: []string{"A", "B"}, Correct: "C"},
			wantErr: "not one of the options",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidQuestion))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.0, Accuracy(0, 0))
	assert.Equal(t, 1.0, Accuracy(1, 1))
	assert.Equal(t, 0.5, Accuracy(1, 2))
	assert.Equal(t, 0.0, Accuracy(3, -1))
}

func TestEvaluationFinish(t *testing.T) {
	at := time.Date(2026, 2, 18, 15, 30, 0, 0, time.UTC)

	ev := &Evaluation{ID: "ev", Status: EvaluationStarted}
	ev.Finish(at, nil)
	assert.Equal(t, EvaluationCompleted, ev.Status)
	require.NotNil(t, ev.EndTime)
	assert.Equal(t, at, *ev.EndTime)
	assert.Empty(t, ev.Error)

	failed := &Evaluation{ID: "ev2", Status: EvaluationStarted}
	failed.Finish(at, errors.New("boom"))
	assert.Equal(t, EvaluationFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}
