package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spboyer/evalforge/internal/agents"
	"github.com/spboyer/evalforge/internal/dataset"
	"github.com/spboyer/evalforge/internal/evaluation"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/projectconfig"
	"github.com/spboyer/evalforge/internal/reporting"
	"github.com/spboyer/evalforge/internal/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type evaluateOptions struct {
	questions     string
	rows          string
	kus           []string
	models        []string
	seed          int64
	workers       int
	timeout       time.Duration
	retries       int
	format        string
	output        string
	name          string
	minAccuracy   float64
	benchmark     bool
	benchmarkSeed int64
	config        string
}

func newEvaluateCommand() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate models against a CSV question set",
		Long: `Evaluate one or more models against the questions in a CSV file.

Models are given as name[:type], where type is stub, local, random or
scripted (default stub). Random models draw from --seed.

Results are printed as a table by default; --format selects json, csv,
junit, markdown or html instead. When --min-accuracy is set and the average
accuracy falls below it, the command exits with status 1.`,
		Example: `  evalforge evaluate --questions questions.csv --model baseline --model guesser:random
  evalforge evaluate --questions questions.csv --ku Networking --format junit --output results.xml
  evalforge evaluate --questions questions.csv --rows 1-20 --min-accuracy 0.8`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.config)
			if err != nil {
				return err
			}
			applyEvaluateConfig(cmd, cfg, &opts)
			return runEvaluate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.questions, "questions", "q", "", "CSV file of questions (required)")
	f.StringVar(&opts.rows, "rows", "", "Only use data rows start-end (1-based, inclusive)")
	f.StringSliceVar(&opts.kus, "ku", nil, "Only use questions from these knowledge units")
	f.StringArrayVarP(&opts.models, "model", "m", nil, "Model to evaluate as name[:type] (repeatable, default stub)")
	f.Int64Var(&opts.seed, "seed", -1, "Seed for random models (negative is non-deterministic)")
	f.IntVarP(&opts.workers, "workers", "w", projectconfig.DefaultEvaluationWorkers, "Concurrent answer calls")
	f.DurationVar(&opts.timeout, "timeout", projectconfig.DefaultEvaluationTimeout*time.Second, "Timeout per answer call (0 disables)")
	f.IntVar(&opts.retries, "retries", projectconfig.DefaultMaxRetries, "Retries per failed answer call")
	f.StringVarP(&opts.format, "format", "f", reporting.FormatTable, "Output format: "+strings.Join(reporting.Formats, ", "))
	f.StringVarP(&opts.output, "output", "o", "", "Write the report to this file instead of stdout")
	f.StringVar(&opts.name, "name", "", "Report name (default: questions file name)")
	f.Float64Var(&opts.minAccuracy, "min-accuracy", 0, "Fail when average accuracy is below this value (0-1)")
	f.BoolVar(&opts.benchmark, "benchmark", false, "Also print a benchmark score per model")
	f.Int64Var(&opts.benchmarkSeed, "benchmark-seed", -1, "Seed for benchmark scores (negative is non-deterministic)")
	f.StringVar(&opts.config, "config", "", "Path to a config file (default: search for "+projectconfig.FileName+")")
	_ = cmd.MarkFlagRequired("questions")

	return cmd
}

// applyEvaluateConfig fills flags the user did not set from the config file.
func applyEvaluateConfig(cmd *cobra.Command, cfg *projectconfig.ProjectConfig, opts *evaluateOptions) {
	flags := cmd.Flags()
	if !flags.Changed("workers") {
		opts.workers = cfg.Evaluation.Workers
	}
	if !flags.Changed("timeout") {
		opts.timeout = cfg.Evaluation.TimeoutDuration()
	}
	if !flags.Changed("retries") && cfg.Model.MaxRetries != nil {
		opts.retries = *cfg.Model.MaxRetries
	}
	if !flags.Changed("format") && cfg.Path != "" && cfg.Analytics.ExportFormat != "" {
		opts.format = cfg.Analytics.ExportFormat
	}
}

func runEvaluate(cmd *cobra.Command, opts evaluateOptions) error {
	if !slices.Contains(reporting.Formats, opts.format) {
		return fmt.Errorf("unknown format %q (want one of %s)", opts.format, strings.Join(reporting.Formats, ", "))
	}
	if opts.minAccuracy < 0 || opts.minAccuracy > 1 {
		return fmt.Errorf("--min-accuracy must be between 0 and 1, got %v", opts.minAccuracy)
	}

	questions, err := loadEvaluateQuestions(opts)
	if err != nil {
		return err
	}

	agentList, err := parseModels(opts.models, opts.seed, opts.retries)
	if err != nil {
		return err
	}

	total := len(questions) * len(agentList)
	var answered atomic.Int64
	var spin *spinner.Spinner
	if isTerminal(cmd.ErrOrStderr()) {
		spin = spinner.Start(cmd.ErrOrStderr(), fmt.Sprintf("Evaluating 0/%d answers", total))
	}

	ev := evaluation.New(evaluation.Options{
		Workers: opts.workers,
		Timeout: opts.timeout,
		Logger:  slog.Default(),
		OnAnswer: func(e evaluation.AnswerEvent) {
			n := answered.Add(1)
			if spin != nil {
				spin.Update(fmt.Sprintf("Evaluating %d/%d answers", n, total))
			}
			if e.Err != nil {
				slog.Warn("answer failed", "model", e.ModelName, "question", e.QuestionID, "error", e.Err)
			}
		},
	})

	start := time.Now()
	result, err := ev.Evaluate(cmd.Context(), agentList, questions)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	name := opts.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(opts.questions), filepath.Ext(opts.questions))
	}
	report := &reporting.Report{
		Name:      name,
		Timestamp: start.UTC(),
		Duration:  time.Since(start),
		Questions: questions,
		Result:    result,
		Summary:   agents.Analytics{ExportFormat: opts.format}.Summary(result),
	}

	out := cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close() //nolint:errcheck
		out = f
	}

	if opts.format == reporting.FormatTable {
		printResultTable(out, report)
	} else if err := reporting.Write(out, opts.format, report); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	if opts.benchmark {
		printBenchmarks(cmd.OutOrStdout(), agents.NewBenchmark(opts.benchmarkSeed), agentList)
	}
	if opts.output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", opts.output) //nolint:errcheck
	}

	if opts.minAccuracy > 0 && report.Summary.AverageAccuracy < opts.minAccuracy {
		return &BelowThresholdError{Accuracy: report.Summary.AverageAccuracy, Minimum: opts.minAccuracy}
	}
	return nil
}

func loadEvaluateQuestions(opts evaluateOptions) ([]models.Question, error) {
	questions, err := dataset.LoadQuestions(opts.questions)
	if err != nil {
		return nil, err
	}
	if opts.rows != "" {
		start, end, err := parseRange(opts.rows)
		if err != nil {
			return nil, err
		}
		if questions, err = dataset.Slice(questions, start, end); err != nil {
			return nil, fmt.Errorf("--rows: %w", err)
		}
	}
	if len(opts.kus) > 0 {
		questions = slices.DeleteFunc(questions, func(q models.Question) bool {
			return !slices.Contains(opts.kus, q.KnowledgeUnit)
		})
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions selected from %s", opts.questions)
	}
	return questions, nil
}

// parseRange parses "start-end" or a single row number.
func parseRange(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, "-")
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("--rows: invalid start %q", lo)
	}
	if !found {
		return start, start, nil
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("--rows: invalid end %q", hi)
	}
	return start, end, nil
}

// parseModels builds agents from name[:type] specs, numbering them from 1.
func parseModels(specs []string, seed int64, retries int) ([]*agents.ModelAgent, error) {
	if len(specs) == 0 {
		specs = []string{models.ModelTypeStub}
	}
	out := make([]*agents.ModelAgent, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		name, kind, _ := strings.Cut(spec, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("--model %q: name is required", spec)
		}
		if seen[name] {
			return nil, fmt.Errorf("--model %q: duplicate model name", spec)
		}
		seen[name] = true

		var params map[string]any
		if kind == models.ModelTypeRandom && seed >= 0 {
			// Offset so each random model draws its own sequence.
			params = map[string]any{"seed": seed + int64(i)}
		}
		agent, err := agents.FromModel(models.Model{
			ID:         int64(i + 1),
			Name:       name,
			Type:       kind,
			MaxRetries: retries,
			Params:     params,
		})
		if err != nil {
			return nil, fmt.Errorf("--model %q: %w", spec, err)
		}
		out = append(out, agent)
	}
	return out, nil
}

func printResultTable(w io.Writer, r *reporting.Report) {
	const maxName = 32
	nameWidth := runewidth.StringWidth("MODEL")
	for _, m := range r.Result.Models {
		nameWidth = max(nameWidth, runewidth.StringWidth(truncateName(m.Name, maxName)))
	}

	fmt.Fprintf(w, "%s  %7s  %5s  %8s\n", padRight("MODEL", nameWidth), "CORRECT", "TOTAL", "ACCURACY") //nolint:errcheck
	for _, m := range r.Result.Models {
		fmt.Fprintf(w, "%s  %7d  %5d  %7.1f%%\n", //nolint:errcheck
			padRight(truncateName(m.Name, maxName), nameWidth), m.Correct, m.Total, m.Accuracy*100)
	}
	fmt.Fprintln(w)                                 //nolint:errcheck
	fmt.Fprint(w, reporting.FormatSummaryReport(r)) //nolint:errcheck
}

func printBenchmarks(w io.Writer, b *agents.Benchmark, agentList []*agents.ModelAgent) {
	fmt.Fprintln(w, "\nBenchmark:") //nolint:errcheck
	for _, a := range agentList {
		res := b.Run(a)
		fmt.Fprintf(w, "  %s: %.4f\n", a.Name, res.Score) //nolint:errcheck
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// truncateName shortens a name to maxLen runes, replacing the last rune with "…" if needed.
func truncateName(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}
	return string(runes[:maxLen-1]) + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
