package webapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/auth"
	"github.com/spboyer/evalforge/internal/evaluation"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/store"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// routePrefixes are mounted for every route; clients use either form.
var routePrefixes = []string{"", "/api"}

// ModelDefaults are applied to models created without their own settings.
type ModelDefaults struct {
	MaxRetries     int
	ResponseFormat models.ResponseFormat
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Store          store.Store
	Verifier       auth.Verifier
	Service        *evaluation.Service
	KnowledgeUnits []string
	ModelDefaults  ModelDefaults
	Logger         *slog.Logger
}

// Handlers holds the HTTP handler methods for the web API.
type Handlers struct {
	store    store.Store
	verifier auth.Verifier
	service  *evaluation.Service
	curator  agents.Curator
	kus      []string
	defaults ModelDefaults
	logger   *slog.Logger
}

// NewHandlers creates Handlers from deps. Missing optional fields get defaults.
func NewHandlers(deps Deps) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(deps.KnowledgeUnits) == 0 {
		deps.KnowledgeUnits = models.DefaultKnowledgeUnits
	}
	if deps.ModelDefaults.ResponseFormat == "" {
		deps.ModelDefaults.ResponseFormat = agents.DefaultResponseFormat
	}
	if deps.Verifier == nil {
		deps.Verifier = auth.NewStatic(auth.Credentials{}, "")
	}
	if deps.Service == nil {
		deps.Service = evaluation.NewService(deps.Store, evaluation.ServiceOptions{Logger: deps.Logger})
	}
	return &Handlers{
		store:    deps.Store,
		verifier: deps.Verifier,
		service:  deps.Service,
		kus:      slices.Clone(deps.KnowledgeUnits),
		defaults: deps.ModelDefaults,
		logger:   deps.Logger,
	}
}

// HandleRoot identifies the service.
func (h *Handlers) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, MessageResponse{Message: "EvalForge API"})
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

// HandleLogin exchanges the configured credential pair for a bearer token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, err := h.verifier.Login(req.Username, req.Password)
	if err != nil {
		h.logger.Info("login rejected", "username", req.Username)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// HandleListQuestions lists questions, optionally filtered by ?ku= and capped by ?limit=.
func (h *Handlers) HandleListQuestions(w http.ResponseWriter, r *http.Request) {
	filter := store.QuestionFilter{KnowledgeUnits: queryList(r, "ku")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		filter.Limit = limit
	}

	questions, err := h.store.ListQuestions(r.Context(), filter)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

// HandleCreateQuestion stores a new question.
func (h *Handlers) HandleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req QuestionRequest
	if !h.decode(w, r, &req) {
		return
	}
	q := req.Question()
	if err := h.store.CreateQuestion(r.Context(), &q); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleDeleteQuestion removes a question.
func (h *Handlers) HandleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	if err := h.store.DeleteQuestion(r.Context(), id); err != nil {
		h.writeErr(w, r, notFound(err, "question"))
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "deleted"})
}

// HandleReviewQuestion runs the curator over a stored question.
func (h *Handlers) HandleReviewQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "question")
	if !ok {
		return
	}
	q, err := h.store.GetQuestion(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, notFound(err, "question"))
		return
	}
	writeJSON(w, http.StatusOK, h.curator.Review(*q))
}

// HandleListModels lists registered models. API keys are never returned.
func (h *Handlers) HandleListModels(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListModels(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreateModel registers a model.
func (h *Handlers) HandleCreateModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if !h.decode(w, r, &req) {
		return
	}

	m := models.Model{
		Name:           req.Name,
		Type:           req.Type,
		Status:         models.ModelStatusActive,
		ModelName:      req.ModelName,
		APIKey:         req.APIKey,
		MaxRetries:     h.defaults.MaxRetries,
		ResponseFormat: h.defaults.ResponseFormat,
		Params:         req.Params,
	}
	if m.Type == "" {
		m.Type = models.ModelTypeStub
	}
	if req.MaxRetries != nil {
		m.MaxRetries = *req.MaxRetries
	}
	if req.ResponseFormat != "" {
		m.ResponseFormat = models.ResponseFormat(req.ResponseFormat)
	}
	// Reject params the answerer cannot use before the model is stored.
	if _, err := agents.NewAnswerer(m.Type, m.Params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.CreateModel(r.Context(), &m); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleTestModel asks a model a probe question.
func (h *Handlers) HandleTestModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "model")
	if !ok {
		return
	}
	if err := h.service.TestModel(r.Context(), id); err != nil {
		h.writeErr(w, r, notFound(err, "model"))
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleBenchmarkModel returns a benchmark score for a model.
func (h *Handlers) HandleBenchmarkModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "model")
	if !ok {
		return
	}
	res, err := h.service.Benchmark(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, notFound(err, "model"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCreateEvaluation runs an evaluation and returns its final record.
func (h *Handlers) HandleCreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req EvaluationRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.service.Create(r.Context(), evaluation.Request{
		ModelIDs:       req.ModelIDs,
		KnowledgeUnits: req.QuestionScope,
		QuestionCount:  req.QuestionCount,
		Mode:           req.Mode,
	})
	if err != nil {
		h.writeErr(w, r, notFound(err, "model"))
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleGetEvaluation returns a run record. It also serves /status.
func (h *Handlers) HandleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, notFound(err, "evaluation"))
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleEvaluationResults returns the aggregate result of a run.
func (h *Handlers) HandleEvaluationResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, notFound(err, "evaluation results"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleEvaluationSummary returns the analytics digest of a run.
func (h *Handlers) HandleEvaluationSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, notFound(err, "evaluation results"))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleKnowledgeUnits lists the configured knowledge units.
func (h *Handlers) HandleKnowledgeUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.kus)
}

// RegisterRoutes registers all web API routes on the given mux, both bare
// and under /api.
func RegisterRoutes(mux *http.ServeMux, h *Handlers) {
	for _, p := range routePrefixes {
		mux.HandleFunc("GET "+p+"/{$}", h.HandleRoot)
		mux.HandleFunc("GET "+p+"/health", h.HandleHealth)
		mux.HandleFunc("POST "+p+"/login", h.HandleLogin)

		mux.HandleFunc("GET "+p+"/questions", h.requireAuth(h.HandleListQuestions))
		mux.HandleFunc("POST "+p+"/questions", h.requireAuth(h.HandleCreateQuestion))
		mux.HandleFunc("DELETE "+p+"/questions/{id}", h.requireAuth(h.HandleDeleteQuestion))
		mux.HandleFunc("POST "+p+"/questions/{id}/review", h.requireAuth(h.HandleReviewQuestion))

		mux.HandleFunc("GET "+p+"/models", h.requireAuth(h.HandleListModels))
		mux.HandleFunc("POST "+p+"/models", h.requireAuth(h.HandleCreateModel))
		mux.HandleFunc("POST "+p+"/models/{id}/test", h.requireAuth(h.HandleTestModel))
		mux.HandleFunc("POST "+p+"/models/{id}/benchmark", h.requireAuth(h.HandleBenchmarkModel))

		mux.HandleFunc("POST "+p+"/evaluations", h.requireAuth(h.HandleCreateEvaluation))
		mux.HandleFunc("GET "+p+"/evaluations/{id}", h.requireAuth(h.HandleGetEvaluation))
		mux.HandleFunc("GET "+p+"/evaluations/{id}/status", h.requireAuth(h.HandleGetEvaluation))
		mux.HandleFunc("GET "+p+"/evaluations/{id}/results", h.requireAuth(h.HandleEvaluationResults))
		mux.HandleFunc("GET "+p+"/evaluations/{id}/summary", h.requireAuth(h.HandleEvaluationSummary))

		mux.HandleFunc("GET "+p+"/kus", h.requireAuth(h.HandleKnowledgeUnits))
	}
}

// decode reads a JSON body into v and validates it. It writes a 400 and
// returns false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{ Validate() error }) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, http.StatusBadRequest, msg)
		return false
	}
	if err := v.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// writeErr maps err onto the status taxonomy and writes it.
func (h *Handlers) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var nf *notFoundError
	switch {
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, agents.ErrInvalidArgument), errors.Is(err, models.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type notFoundError struct {
	what string
	err  error
}

func (e *notFoundError) Error() string { return e.what + " not found" }
func (e *notFoundError) Unwrap() error { return e.err }

// notFound names the missing record when err is a store.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &notFoundError{what: what, err: err}
	}
	return err
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s id %q", what, raw))
		return 0, false
	}
	return id, true
}

// queryList collects repeated and comma-separated values of a query parameter.
func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// CORSMiddleware wraps a handler with CORS headers.
// If allowedOrigins is empty, no CORS header is set (same-origin only).
// Otherwise, the request Origin is checked against the allowed list.
func CORSMiddleware(next http.Handler, allowedOrigins ...string) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if len(allowedOrigins) > 0 && origin != "" && (allowed[origin] || allowed["*"]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
