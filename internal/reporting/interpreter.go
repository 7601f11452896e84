package reporting

import (
	"fmt"
	"strings"
	"time"
)

// InterpretAccuracy returns a plain-language label for an accuracy (0–1).
func InterpretAccuracy(acc float64) string {
	pct := acc * 100
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretErrors explains how many answers were lost to failing calls.
func InterpretErrors(errors, total int) string {
	if errors == 0 {
		return "Every model answered every question."
	}
	return fmt.Sprintf("%d of %d answers failed and were counted incorrect.", errors, total)
}

// FormatSummaryReport produces a plain-language report for r.
func FormatSummaryReport(r *Report) string {
	var b strings.Builder

	b.WriteString("=== Interpretation ===\n\n")
	fmt.Fprintf(&b, "Average Accuracy: %.2f — %s\n", r.Summary.AverageAccuracy, InterpretAccuracy(r.Summary.AverageAccuracy))
	fmt.Fprintf(&b, "Models:           %d\n", r.Summary.ModelCount)
	fmt.Fprintf(&b, "Questions:        %d\n", len(r.Result.Questions))
	if r.Duration > 0 {
		fmt.Fprintf(&b, "Duration:         %v\n", r.Duration.Round(time.Millisecond))
	}

	var failed, total int
	for _, qr := range r.Result.Questions {
		failed += len(qr.Errors)
		total += len(qr.Answers)
	}
	fmt.Fprintf(&b, "Errors:           %s\n", InterpretErrors(failed, total))

	if len(r.Result.Models) > 0 {
		b.WriteString("\nPer-Model Interpretation:\n")
		for _, m := range r.Result.Models {
			icon := "✓"
			if m.Accuracy < 0.5 {
				icon = "✗"
			}
			fmt.Fprintf(&b, "  %s %s: %d/%d — %s\n", icon, m.Name, m.Correct, m.Total, InterpretAccuracy(m.Accuracy))
		}
	}

	return b.String()
}
