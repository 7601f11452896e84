// Package reporting renders evaluation results as CSV, JSON, JUnit XML,
// Markdown and HTML.
package reporting

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spboyer/evalforge/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Output formats accepted by Write.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatJUnit    = "junit"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// Formats lists every format Write understands.
var Formats = []string{FormatTable, FormatJSON, FormatCSV, FormatJUnit, FormatMarkdown, FormatHTML}

// Report is an evaluation result together with the context needed to label it.
type Report struct {
	Name      string
	Timestamp time.Time
	Duration  time.Duration
	// Questions supplies text and knowledge units by ID. Optional.
	Questions []models.Question
	Result    *models.EvaluationResult
	Summary   models.Summary
}

func (r *Report) question(id int64) (models.Question, bool) {
	for _, q := range r.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return models.Question{}, false
}

func (r *Report) questionLabel(id int64) string {
	if q, ok := r.question(id); ok && q.Text != "" {
		return q.Text
	}
	return "question " + strconv.FormatInt(id, 10)
}

// Write renders r in the given format. The table format is rendered by the
// CLI and is rejected here.
func Write(w io.Writer, format string, r *Report) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatCSV:
		return WriteCSV(w, r)
	case FormatJUnit:
		return WriteJUnit(w, r)
	case FormatMarkdown:
		return WriteMarkdown(w, r)
	case FormatHTML:
		return WriteHTML(w, r)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteCSV writes one row per model: id,name,correct,total,accuracy.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "name", "correct", "total", "accuracy"}); err != nil {
		return err
	}
	for _, m := range r.Result.Models {
		if err := cw.Write([]string{
			strconv.FormatInt(m.ID, 10),
			m.Name,
			strconv.Itoa(m.Correct),
			strconv.Itoa(m.Total),
			strconv.FormatFloat(m.Accuracy, 'f', 4, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonReport struct {
	Name      string                   `json:"name,omitempty"`
	Timestamp *time.Time               `json:"timestamp,omitempty"`
	Duration  string                   `json:"duration,omitempty"`
	Summary   models.Summary           `json:"summary"`
	Result    *models.EvaluationResult `json:"result"`
}

// WriteJSON writes the summary and full result as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	out := jsonReport{Name: r.Name, Summary: r.Summary, Result: r.Result}
	if !r.Timestamp.IsZero() {
		out.Timestamp = &r.Timestamp
	}
	if r.Duration > 0 {
		out.Duration = r.Duration.String()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// Markdown renders r as a Markdown document with a per-model table and a
// per-question answer table.
func Markdown(r *Report) string {
	var b strings.Builder

	title := r.Name
	if title == "" {
		title = "Evaluation report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if !r.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Run at %s", r.Timestamp.Format(time.RFC3339))
		if r.Duration > 0 {
			fmt.Fprintf(&b, " in %s", r.Duration.Round(time.Millisecond))
		}
		b.WriteString(".\n\n")
	}
	fmt.Fprintf(&b, "**Models:** %d  \n**Average accuracy:** %.1f%% (%s)\n\n",
		r.Summary.ModelCount, r.Summary.AverageAccuracy*100, InterpretAccuracy(r.Summary.AverageAccuracy))

	b.WriteString("## Models\n\n")
	b.WriteString("| ID | Model | Correct | Total | Accuracy |\n")
	b.WriteString("|---:|---|---:|---:|---:|\n")
	for _, m := range r.Result.Models {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %.1f%% |\n", m.ID, escapeCell(m.Name), m.Correct, m.Total, m.Accuracy*100)
	}

	if len(r.Result.Questions) == 0 {
		return b.String()
	}

	b.WriteString("\n## Questions\n\n")
	b.WriteString("| Question | Correct |")
	for _, m := range r.Result.Models {
		fmt.Fprintf(&b, " %s |", escapeCell(m.Name))
	}
	b.WriteString("\n|---|---|")
	for range r.Result.Models {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for _, qr := range r.Result.Questions {
		fmt.Fprintf(&b, "| %s | %s |", escapeCell(r.questionLabel(qr.ID)), escapeCell(qr.Correct))
		for _, m := range r.Result.Models {
			b.WriteString(" " + answerCell(qr, m.ID) + " |")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func answerCell(qr models.QuestionResult, modelID int64) string {
	if msg, ok := qr.Errors[modelID]; ok {
		return "error: " + escapeCell(msg)
	}
	ans := qr.Answers[modelID]
	mark := "✗"
	if ans == qr.Correct {
		mark = "✓"
	}
	return mark + " " + escapeCell(ans)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// WriteMarkdown writes the Markdown rendering of r.
func WriteMarkdown(w io.Writer, r *Report) error {
	_, err := io.WriteString(w, Markdown(r))
	return err
}

// WriteHTML converts the Markdown rendering of r to a standalone HTML page.
func WriteHTML(w io.Writer, r *Report) error {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &body); err != nil {
		return fmt.Errorf("rendering HTML: %w", err)
	}

	title := r.Name
	if title == "" {
		title = "Evaluation report"
	}
	_, err := fmt.Fprintf(w, htmlPage, html.EscapeString(title), body.String())
	return err
}

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
</style>
</head>
<body>
%s</body>
</html>
`
