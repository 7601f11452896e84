package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evalforge",
		Short: "EvalForge - evaluate models against multiple-choice questions",
		Long: `EvalForge is a backend for evaluating AI models against multiple-choice
question sets.

It serves a JSON API for managing questions, models and evaluation runs, and
runs offline evaluations from CSV question files.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newEvaluateCommand())
	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newQuestionsCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the EvalForge version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write([]byte("evalforge " + version + "\n"))
			return err
		},
	}
}

func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	return rootCmd.ExecuteContext(ctx)
}
