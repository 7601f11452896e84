package models

// ResponseFormat is the answer format a model is expected to produce.
type ResponseFormat string

const (
	ResponseFormatLetter ResponseFormat = "letter"
	ResponseFormatText   ResponseFormat = "text"
)

// Model status values.
const (
	ModelStatusActive = "active"
)

// Model types understood by the answerer registry.
const (
	ModelTypeStub     = "stub"
	ModelTypeLocal    = "local"
	ModelTypeScripted = "scripted"
	ModelTypeRandom   = "random"
)

// Model is a registered evaluable entity.
type Model struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	ModelName      string         `json:"model_name,omitempty"`
	APIKey         string         `json:"-"`
	MaxRetries     int            `json:"max_retries"`
	ResponseFormat ResponseFormat `json:"response_format"`
	Params         map[string]any `json:"params,omitempty"`
}

// BenchmarkResult is the score produced by a benchmark run for one model.
type BenchmarkResult struct {
	ModelID int64   `json:"model_id"`
	Score   float64 `json:"benchmark_score"`
}
