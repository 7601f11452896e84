package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBelowThresholdError(t *testing.T) {
	err := &BelowThresholdError{Accuracy: 0.5, Minimum: 0.75}
	assert.Equal(t, "average accuracy 0.5000 is below the minimum 0.7500", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitSuccess},
		{"below threshold", &BelowThresholdError{Accuracy: 0.1, Minimum: 0.9}, ExitBelowThreshold},
		{"wrapped below threshold", fmt.Errorf("run: %w", &BelowThresholdError{}), ExitBelowThreshold},
		{"joined below threshold", errors.Join(&BelowThresholdError{}, errors.New("additional context")), ExitBelowThreshold},
		{"regular error", errors.New("config error"), ExitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "evaluate", "init", "questions", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCommand()
	root.SetOut(&buf)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "evalforge "+version+"\n", buf.String())
}
