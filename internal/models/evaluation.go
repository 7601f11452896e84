package models

import "time"

// EvaluationStatus is the lifecycle state of an evaluation run.
type EvaluationStatus string

const (
	EvaluationStarted   EvaluationStatus = "started"
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationFailed    EvaluationStatus = "failed"
)

// Evaluation is one run of the aggregator against a set of models and questions.
// It is tracked independently of its result.
type Evaluation struct {
	ID             string           `json:"evaluation_id"`
	Status         EvaluationStatus `json:"status"`
	ModelIDs       []int64          `json:"model_ids,omitempty"`
	KnowledgeUnits []string         `json:"question_scope,omitempty"`
	QuestionCount  int              `json:"question_count,omitempty"`
	Mode           string           `json:"mode,omitempty"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        *time.Time       `json:"end_time,omitempty"`
	Error          string           `json:"error,omitempty"`
}

// Finish moves the run into a terminal state.
func (e *Evaluation) Finish(at time.Time, err error) {
	e.EndTime = &at
	if err != nil {
		e.Status = EvaluationFailed
		e.Error = err.Error()
		return
	}
	e.Status = EvaluationCompleted
}

// EvaluationResult holds per-model statistics and per-question answers.
type EvaluationResult struct {
	Models    []ModelStats     `json:"models"`
	Questions []QuestionResult `json:"questions"`
}

// ModelStats is the accuracy tally for a single model.
type ModelStats struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// QuestionResult records every model's answer to one question. Errors holds the
// final error for models whose answer capability failed.
type QuestionResult struct {
	ID      int64            `json:"id"`
	Answers map[int64]string `json:"answers"`
	Errors  map[int64]string `json:"errors,omitempty"`
	Correct string           `json:"correct_answer"`
}

// Accuracy returns correct/total, or 0 when total is 0.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Summary is the analytics digest of an evaluation result.
type Summary struct {
	ModelCount      int     `json:"model_count"`
	AverageAccuracy float64 `json:"average_accuracy"`
}
