package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spboyer/evalforge/internal/dataset"
	"github.com/spboyer/evalforge/internal/wizard"
	"github.com/spf13/cobra"
)

func newQuestionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Manage CSV question files",
	}
	cmd.AddCommand(newQuestionsNewCommand())
	cmd.AddCommand(newQuestionsValidateCommand())
	return cmd
}

func newQuestionsNewCommand() *cobra.Command {
	var (
		file   string
		config string
	)

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Add a question to a CSV file interactively",
		Long: `Add a question to a CSV file interactively.

The wizard asks for the question text, its options, the correct answer and
a knowledge unit from the configured list. The file is created with a header
row when it does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(config)
			if err != nil {
				return err
			}
			q, err := wizard.RunQuestionWizard(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.KnowledgeUnits)
			if err != nil {
				return err
			}
			q, err = dataset.AppendQuestion(file, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added question %d to %s\n", q.ID, file) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "questions.csv", "CSV file to append to")
	cmd.Flags().StringVar(&config, "config", "", "Path to a config file")

	return cmd
}

func newQuestionsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a CSV question file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := dataset.LoadQuestions(args[0])
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, q := range qs {
				counts[q.KnowledgeUnit]++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d valid questions\n", args[0], len(qs)) //nolint:errcheck
			for _, ku := range slices.Sorted(maps.Keys(counts)) {
				label := ku
				if label == "" {
					label = "(none)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", label, counts[ku]) //nolint:errcheck
			}
			return nil
		},
	}
}
