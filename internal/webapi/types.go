package webapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/spboyer/evalforge/internal/models"
)

// requestValidate checks request bodies against their validate tags.
var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// MessageResponse is returned by the root endpoint.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// StatusResponse acknowledges an operation that returns no record.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate accepts any well-formed body. Empty fields are a credential
// mismatch and are rejected by the verifier with 401.
func (r *LoginRequest) Validate() error {
	return nil
}

// QuestionRequest is the body of POST /questions.
type QuestionRequest struct {
	Text          string   `json:"text" validate:"required,max=4096"`
	Options       []string `json:"options" validate:"required,min=2,max=26,unique,dive,required"`
	Correct       string   `json:"correct" validate:"required"`
	KnowledgeUnit string   `json:"ku" validate:"required"`
}

// Validate checks the request tags and the question invariants.
func (r *QuestionRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	q := r.Question()
	return q.Validate()
}

// Question converts the request into an unsaved question.
func (r *QuestionRequest) Question() models.Question {
	return models.Question{
		Text:          r.Text,
		Options:       r.Options,
		Correct:       r.Correct,
		KnowledgeUnit: r.KnowledgeUnit,
	}
}

// ModelRequest is the body of POST /models.
type ModelRequest struct {
	Name           string         `json:"name" validate:"required,max=256"`
	Type           string         `json:"type" validate:"omitempty,oneof=stub local scripted random"`
	ModelName      string         `json:"model_name,omitempty"`
	APIKey         string         `json:"api_key,omitempty"`
	MaxRetries     *int           `json:"max_retries,omitempty" validate:"omitempty,gte=0,lte=10"`
	ResponseFormat string         `json:"response_format,omitempty" validate:"omitempty,oneof=letter text"`
	Params         map[string]any `json:"params,omitempty"`
}

func (r *ModelRequest) Validate() error {
	return requestValidate.Struct(r)
}

// EvaluationRequest is the body of POST /evaluations.
type EvaluationRequest struct {
	ModelIDs      []int64  `json:"model_ids" validate:"required,min=1,dive,gt=0"`
	QuestionScope []string `json:"question_scope,omitempty" validate:"omitempty,dive,required"`
	QuestionCount int      `json:"question_count,omitempty" validate:"gte=0"`
	Mode          string   `json:"mode,omitempty" validate:"omitempty,max=64"`
}

func (r *EvaluationRequest) Validate() error {
	return requestValidate.Struct(r)
}
