// Package wizard collects questions and project settings through
// interactive huh forms.
package wizard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spboyer/evalforge/internal/models"
	"github.com/spboyer/evalforge/internal/projectconfig"
	"github.com/spboyer/evalforge/internal/reporting"
	"golang.org/x/term"
)

// QuestionAnswers holds the raw fields collected by the question wizard.
type QuestionAnswers struct {
	Text          string
	Options       string
	Correct       string
	KnowledgeUnit string
}

// Question converts the answers into a validated question. Options are
// separated by newlines or commas.
func (a QuestionAnswers) Question() (models.Question, error) {
	q := models.Question{
		Text:          strings.TrimSpace(a.Text),
		Options:       splitOptions(a.Options),
		Correct:       strings.TrimSpace(a.Correct),
		KnowledgeUnit: strings.TrimSpace(a.KnowledgeUnit),
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

// RunQuestionWizard runs an interactive form that collects one question. The
// knowledge unit is chosen from kus.
func RunQuestionWizard(in io.Reader, out io.Writer, kus []string) (models.Question, error) {
	var a QuestionAnswers
	if len(kus) == 0 {
		kus = models.DefaultKnowledgeUnits
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Question").
				Placeholder("Which port does HTTPS use by default?").
				Value(&a.Text).
				Validate(required("question text")),
			huh.NewText().
				Title("Options").
				Description("One option per line, or comma-separated").
				Value(&a.Options).
				Validate(func(s string) error {
					if len(splitOptions(s)) < 2 {
						return errors.New("at least 2 options are required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Correct answer").
				Description("Must match one of the options exactly").
				Value(&a.Correct).
				Validate(func(s string) error {
					if !slices.Contains(splitOptions(a.Options), strings.TrimSpace(s)) {
						return errors.New("correct answer must be one of the options")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Knowledge unit").
				Options(huh.NewOptions(kus...)...).
				Value(&a.KnowledgeUnit),
		),
	)

	if err := run(form, in, out); err != nil {
		return models.Question{}, err
	}
	return a.Question()
}

// InitAnswers holds the settings collected by the init wizard.
type InitAnswers struct {
	Host         string
	Port         string
	AuthMode     string
	StoreDriver  string
	StorePath    string
	Workers      string
	ExportFormat string
}

// answersFrom seeds the wizard with the current config values.
func answersFrom(cfg *projectconfig.ProjectConfig) InitAnswers {
	return InitAnswers{
		Host:         cfg.Server.Host,
		Port:         strconv.Itoa(cfg.Server.Port),
		AuthMode:     cfg.Auth.Mode,
		StoreDriver:  cfg.Store.Driver,
		StorePath:    cfg.Store.Path,
		Workers:      strconv.Itoa(cfg.Evaluation.Workers),
		ExportFormat: cfg.Analytics.ExportFormat,
	}
}

// Apply copies the answers onto cfg.
func (a InitAnswers) Apply(cfg *projectconfig.ProjectConfig) error {
	port, err := parseBounded("port", a.Port, 1, 65535)
	if err != nil {
		return err
	}
	workers, err := parseBounded("workers", a.Workers, 1, 256)
	if err != nil {
		return err
	}
	if h := strings.TrimSpace(a.Host); h != "" {
		cfg.Server.Host = h
	}
	cfg.Server.Port = port
	cfg.Evaluation.Workers = workers
	if a.AuthMode != "" {
		cfg.Auth.Mode = a.AuthMode
	}
	if a.StoreDriver != "" {
		cfg.Store.Driver = a.StoreDriver
	}
	if p := strings.TrimSpace(a.StorePath); p != "" {
		cfg.Store.Path = p
	}
	if a.ExportFormat != "" {
		cfg.Analytics.ExportFormat = a.ExportFormat
	}
	return nil
}

// RunInitWizard walks through the main project settings, starting from cfg,
// and applies the answers to cfg.
func RunInitWizard(in io.Reader, out io.Writer, cfg *projectconfig.ProjectConfig) error {
	a := answersFrom(cfg)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server host").
				Value(&a.Host).
				Validate(required("host")),
			huh.NewInput().
				Title("Server port").
				Value(&a.Port).
				Validate(func(s string) error {
					_, err := parseBounded("port", s, 1, 65535)
					return err
				}),
			huh.NewSelect[string]().
				Title("Authentication").
				Options(
					huh.NewOption("static token", "static"),
					huh.NewOption("signed JWT", "jwt"),
				).
				Value(&a.AuthMode),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Store").
				Options(
					huh.NewOption("in-memory", "memory"),
					huh.NewOption("SQLite file", "sqlite"),
				).
				Value(&a.StoreDriver),
			huh.NewInput().
				Title("SQLite path").
				Description("Used when the store is SQLite").
				Value(&a.StorePath),
			huh.NewInput().
				Title("Evaluation workers").
				Value(&a.Workers).
				Validate(func(s string) error {
					_, err := parseBounded("workers", s, 1, 256)
					return err
				}),
			huh.NewSelect[string]().
				Title("Default export format").
				Options(huh.NewOptions(reporting.Formats...)...).
				Value(&a.ExportFormat),
		),
	)

	if err := run(form, in, out); err != nil {
		return err
	}
	return a.Apply(cfg)
}

func run(form *huh.Form, in io.Reader, out io.Writer) error {
	form = form.WithInput(in).WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return fmt.Errorf("wizard failed: %w", err)
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func parseBounded(field, s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be a number between %d and %d", field, lo, hi)
	}
	return n, nil
}

// splitOptions splits on newlines, or on commas when the input is one line.
func splitOptions(s string) []string {
	sep := "\n"
	if !strings.Contains(strings.TrimSpace(s), "\n") {
		sep = ","
	}
	return splitAndTrim(s, sep)
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	var result []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
