package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spboyer/evalforge/internal/models"
)

// OptionSeparator joins a question's options inside the options column.
const OptionSeparator = "|"

// Header is the column layout of a question file.
var Header = []string{"id", "text", "options", "correct", "ku"}

// LoadQuestions reads a question file. Rows without an id are numbered by
// their position in the file. Every row must pass Question.Validate.
func LoadQuestions(path string) ([]models.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("questions: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	qs, err := ReadQuestions(f)
	if err != nil {
		return nil, fmt.Errorf("questions: %s: %w", path, err)
	}
	return qs, nil
}

// ReadQuestions parses questions from r.
func ReadQuestions(r io.Reader) ([]models.Question, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		for _, col := range []string{"text", "options", "correct"} {
			if _, ok := rows[0][col]; !ok {
				return nil, fmt.Errorf("missing %q column", col)
			}
		}
	}

	qs := make([]models.Question, 0, len(rows))
	seen := make(map[int64]int, len(rows))
	for i, row := range rows {
		line := i + 2
		q, err := questionFromRow(row, int64(i+1))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		if prev, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("row %d: id %d already used on row %d", line, q.ID, prev)
		}
		seen[q.ID] = line
		qs = append(qs, q)
	}
	return qs, nil
}

func questionFromRow(row Row, fallbackID int64) (models.Question, error) {
	q := models.Question{
		ID:            fallbackID,
		Text:          strings.TrimSpace(row["text"]),
		Correct:       strings.TrimSpace(row["correct"]),
		KnowledgeUnit: strings.TrimSpace(row["ku"]),
	}
	if raw := strings.TrimSpace(row["id"]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return q, fmt.Errorf("invalid id %q", raw)
		}
		q.ID = id
	}
	for _, o := range strings.Split(row["options"], OptionSeparator) {
		q.Options = append(q.Options, strings.TrimSpace(o))
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

// AppendQuestion validates q and appends it to the file at path, writing the
// header first when the file is new or empty. A zero ID is replaced by one
// past the highest ID already in the file. The stored question is returned.
func AppendQuestion(path string, q models.Question) (models.Question, error) {
	if err := q.Validate(); err != nil {
		return q, err
	}
	for _, o := range q.Options {
		if strings.Contains(o, OptionSeparator) {
			return q, fmt.Errorf("%w: option %q contains %q", models.ErrInvalidQuestion, o, OptionSeparator)
		}
	}

	existing, err := LoadQuestions(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) && !isEmptyFile(path) {
		return q, err
	}
	if q.ID == 0 {
		q.ID = 1
		for _, e := range existing {
			q.ID = max(q.ID, e.ID+1)
		}
	} else if slices.ContainsFunc(existing, func(e models.Question) bool { return e.ID == q.ID }) {
		return q, fmt.Errorf("questions: id %d already exists in %s", q.ID, path)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return q, fmt.Errorf("questions: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return q, fmt.Errorf("questions: stat %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return q, err
		}
	}
	if err := w.Write(questionRecord(q)); err != nil {
		return q, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return q, fmt.Errorf("questions: write %s: %w", path, err)
	}
	return q, nil
}

// WriteQuestions writes qs, header included, to w.
func WriteQuestions(w io.Writer, qs []models.Question) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, q := range qs {
		if err := cw.Write(questionRecord(q)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func questionRecord(q models.Question) []string {
	return []string{
		strconv.FormatInt(q.ID, 10),
		q.Text,
		strings.Join(q.Options, OptionSeparator),
		q.Correct,
		q.KnowledgeUnit,
	}
}

func isEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() == 0
}
