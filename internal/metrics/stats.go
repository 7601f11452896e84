package metrics

import "github.com/spboyer/evalforge/internal/models"

// Mean computes the arithmetic mean of a float64 slice.
// Returns 0 for empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Accuracies returns the per-model accuracies of a result in model order.
func Accuracies(result *models.EvaluationResult) []float64 {
	if result == nil {
		return nil
	}
	out := make([]float64, len(result.Models))
	for i, m := range result.Models {
		out[i] = m.Accuracy
	}
	return out
}
