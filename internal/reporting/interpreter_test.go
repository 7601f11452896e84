package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterpretAccuracy(t *testing.T) {
	tests := []struct {
		name string
		acc  float64
		want string
	}{
		{"excellent high", 0.95, "Excellent (>90%)"},
		{"excellent boundary", 0.91, "Excellent (>90%)"},
		{"good high", 0.90, "Good (70-90%)"},
		{"good mid", 0.80, "Good (70-90%)"},
		{"good low", 0.70, "Good (70-90%)"},
		{"needs work high", 0.69, "Needs Work (50-70%)"},
		{"needs work low", 0.50, "Needs Work (50-70%)"},
		{"poor high", 0.49, "Poor (<50%)"},
		{"poor zero", 0.0, "Poor (<50%)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpretAccuracy(tt.acc))
		})
	}
}

func TestInterpretErrors(t *testing.T) {
	assert.Equal(t, "Every model answered every question.", InterpretErrors(0, 4))
	assert.Equal(t, "1 of 4 answers failed and were counted incorrect.", InterpretErrors(1, 4))
}

func TestFormatSummaryReport(t *testing.T) {
	r := newTestReport()
	r.Duration = 1500 * time.Millisecond

	report := FormatSummaryReport(r)

	assert.True(t, strings.HasPrefix(report, "=== Interpretation ===\n"))
	assert.Contains(t, report, "Average Accuracy: 0.50 — Needs Work (50-70%)")
	assert.Contains(t, report, "Models:           2")
	assert.Contains(t, report, "Questions:        2")
	assert.Contains(t, report, "Duration:         1.5s")
	assert.Contains(t, report, "1 of 4 answers failed")
	assert.Contains(t, report, "✓ first: 2/2 — Excellent (>90%)")
	assert.Contains(t, report, "✗ second: 0/2 — Poor (<50%)")
}
