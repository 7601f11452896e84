package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess        = 0 // Evaluation met its threshold
	ExitBelowThreshold = 1 // Average accuracy was below --min-accuracy
	ExitError          = 2 // Configuration or runtime error
)

// BelowThresholdError indicates that the evaluation ran successfully but the
// average accuracy did not reach the requested minimum.
type BelowThresholdError struct {
	Accuracy float64
	Minimum  float64
}

func (e *BelowThresholdError) Error() string {
	return fmt.Sprintf("average accuracy %.4f is below the minimum %.4f", e.Accuracy, e.Minimum)
}

func main() {
	os.Exit(exitCode(execute()))
}

// exitCode reports err on stderr and maps it to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, err)

	var below *BelowThresholdError
	if errors.As(err, &below) {
		return ExitBelowThreshold
	}
	// All other errors are configuration/runtime errors
	return ExitError
}
