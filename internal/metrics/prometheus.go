// Package metrics holds the Prometheus collectors exported on /metrics and
// the small numeric helpers used to summarize evaluation results.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects service metrics into its own registry so that several
// servers (and tests) can live in one process. A nil *Recorder discards
// everything it is given.
type Recorder struct {
	registry *prometheus.Registry

	// HTTPRequestDuration measures API latency.
	// Labels: method, route, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts API requests.
	// Labels: method, route, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// AnswerCounter counts answered (question, model) pairs.
	// Labels: model, outcome (correct|incorrect|error)
	AnswerCounter *prometheus.CounterVec

	// AnswerDuration measures a single answer call including retries.
	// Labels: model
	AnswerDuration *prometheus.HistogramVec

	// EvaluationCounter counts finished evaluation runs.
	// Labels: status (completed|failed)
	EvaluationCounter *prometheus.CounterVec

	// ModelAccuracy is the accuracy of each model in its latest evaluation.
	// Labels: model
	ModelAccuracy *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evalforge_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "route", "status_code"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),

		AnswerCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalforge_answers_total",
				Help: "Total number of answered question/model pairs by outcome",
			},
			[]string{"model", "outcome"},
		),

		AnswerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evalforge_answer_duration_seconds",
				Help:    "Duration of model answer calls in seconds",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"model"},
		),

		EvaluationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalforge_evaluations_total",
				Help: "Total number of evaluation runs by final status",
			},
			[]string{"status"},
		),

		ModelAccuracy: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evalforge_model_accuracy",
				Help: "Accuracy of each model in its most recent evaluation",
			},
			[]string{"model"},
		),
	}
}

// Registry returns the registry backing r.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// HTTPRequest records one served request.
func (r *Recorder) HTTPRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.HTTPRequestCounter.WithLabelValues(method, route, code).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(d.Seconds())
}

// Answer records one answered pair. err takes precedence over correct.
func (r *Recorder) Answer(model string, correct bool, err error, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "incorrect"
	switch {
	case err != nil:
		outcome = "error"
	case correct:
		outcome = "correct"
	}
	r.AnswerCounter.WithLabelValues(model, outcome).Inc()
	r.AnswerDuration.WithLabelValues(model).Observe(d.Seconds())
}

// Evaluation records a finished run.
func (r *Recorder) Evaluation(status string) {
	if r == nil {
		return
	}
	r.EvaluationCounter.WithLabelValues(status).Inc()
}

// Accuracy publishes the latest accuracy of a model.
func (r *Recorder) Accuracy(model string, accuracy float64) {
	if r == nil {
		return
	}
	r.ModelAccuracy.WithLabelValues(model).Set(accuracy)
}
