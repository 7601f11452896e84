package agents

import (
	"math/rand"
	"sync"

	"github.com/spboyer/evalforge/internal/metrics"
	"github.com/spboyer/evalforge/internal/models"
)

// ReviewStatusOK is the only status the curator currently reports.
const ReviewStatusOK = "ok"

// Curator reviews submitted questions. Every question is accepted for now;
// duplicate and malformed-question detection will hook in here.
type Curator struct{}

// Review returns the review outcome for q.
func (Curator) Review(q models.Question) models.Review {
	return models.Review{ID: q.ID, Status: ReviewStatusOK}
}

// Analytics computes digests over evaluation results.
type Analytics struct {
	EnableANOVA  bool
	ExportFormat string
}

// Summary returns the model count and the mean per-model accuracy.
// An empty result yields zeros.
func (Analytics) Summary(result *models.EvaluationResult) models.Summary {
	if result == nil || len(result.Models) == 0 {
		return models.Summary{}
	}
	return models.Summary{
		ModelCount:      len(result.Models),
		AverageAccuracy: metrics.Mean(metrics.Accuracies(result)),
	}
}

// Benchmark produces placeholder benchmark scores drawn uniformly from [0, 1).
type Benchmark struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBenchmark creates a Benchmark. A negative seed uses a non-deterministic source.
func NewBenchmark(seed int64) *Benchmark {
	return &Benchmark{rng: newRand(seed)}
}

// Run scores the given model.
func (b *Benchmark) Run(agent *ModelAgent) models.BenchmarkResult {
	b.mu.Lock()
	score := b.rng.Float64()
	b.mu.Unlock()
	return models.BenchmarkResult{ModelID: agent.ID, Score: score}
}
