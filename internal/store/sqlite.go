package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spboyer/evalforge/internal/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	options TEXT NOT NULL,
	correct TEXT NOT NULL,
	ku TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_ku ON questions(ku);

CREATE TABLE IF NOT EXISTS models (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	api_key TEXT,
	model_name TEXT,
	max_retries INTEGER NOT NULL DEFAULT 0,
	response_format TEXT NOT NULL DEFAULT 'letter',
	params TEXT
);

CREATE TABLE IF NOT EXISTS evaluations (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	model_ids TEXT,
	question_scope TEXT,
	question_count INTEGER NOT NULL DEFAULT 0,
	mode TEXT,
	start_time TEXT NOT NULL,
	end_time TEXT,
	error TEXT
);

CREATE TABLE IF NOT EXISTS evaluation_results (
	evaluation_id TEXT PRIMARY KEY REFERENCES evaluations(id) ON DELETE CASCADE,
	result TEXT NOT NULL
);
`

// SQLite is a Store backed by a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	s := NewSQLite(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing database handle. Call Migrate before first use
// on a fresh database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Migrate creates tables and indexes that do not exist yet.
func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLite) CreateQuestion(ctx context.Context, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is required")
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (text, options, correct, ku) VALUES (?, ?, ?, ?)`,
		q.Text, string(options), q.Correct, q.KnowledgeUnit)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	q.ID = id
	return nil
}

func (s *SQLite) GetQuestion(ctx context.Context, id int64) (*models.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, options, correct, ku FROM questions WHERE id = ?`, id)
	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

func (s *SQLite) ListQuestions(ctx context.Context, filter QuestionFilter) ([]models.Question, error) {
	query := `SELECT id, text, options, correct, ku FROM questions`
	var args []any
	if len(filter.KnowledgeUnits) > 0 {
		placeholders := make([]string, len(filter.KnowledgeUnits))
		for i, ku := range filter.KnowledgeUnits {
			placeholders[i] = "?"
			args = append(args, ku)
		}
		query += " WHERE ku IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id ASC"
	if limit := filter.limit(); limit >= 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return out, nil
}

func (s *SQLite) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) CreateModel(ctx context.Context, m *models.Model) error {
	if m == nil {
		return fmt.Errorf("model is required")
	}
	params, err := marshalNullable(m.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO models (name, type, status, api_key, model_name, max_retries, response_format, params)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Type, m.Status, nullString(m.APIKey), nullString(m.ModelName),
		m.MaxRetries, string(m.ResponseFormat), params)
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	m.ID = id
	return nil
}

func (s *SQLite) GetModel(ctx context.Context, id int64) (*models.Model, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, status, api_key, model_name, max_retries, response_format, params
		 FROM models WHERE id = ?`, id)
	m, err := scanModel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get model: %w", err)
	}
	return m, nil
}

func (s *SQLite) ListModels(ctx context.Context) ([]models.Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, status, api_key, model_name, max_retries, response_format, params
		 FROM models ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []models.Model{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return out, nil
}

func (s *SQLite) CreateEvaluation(ctx context.Context, ev *models.Evaluation) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("evaluation id is required")
	}
	modelIDs, scope, err := marshalEvaluationLists(ev)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, status, model_ids, question_scope, question_count, mode, start_time, end_time, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Status), modelIDs, scope, ev.QuestionCount, ev.Mode,
		formatTime(ev.StartTime), formatTimePtr(ev.EndTime), nullString(ev.Error))
	if err != nil {
		return fmt.Errorf("create evaluation: %w", err)
	}
	return nil
}

func (s *SQLite) GetEvaluation(ctx context.Context, id string) (*models.Evaluation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, model_ids, question_scope, question_count, mode, start_time, end_time, error
		 FROM evaluations WHERE id = ?`, id)

	var ev models.Evaluation
	var status, start string
	var modelIDs, scope, mode, end, errMsg sql.NullString
	if err := row.Scan(&ev.ID, &status, &modelIDs, &scope, &ev.QuestionCount, &mode, &start, &end, &errMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	ev.Status = models.EvaluationStatus(status)
	ev.Mode = mode.String
	ev.Error = errMsg.String

	var err error
	if ev.StartTime, err = time.Parse(time.RFC3339Nano, start); err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	if end.Valid {
		t, err := time.Parse(time.RFC3339Nano, end.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		ev.EndTime = &t
	}
	if err := unmarshalNullable(modelIDs, &ev.ModelIDs); err != nil {
		return nil, fmt.Errorf("unmarshal model_ids: %w", err)
	}
	if err := unmarshalNullable(scope, &ev.KnowledgeUnits); err != nil {
		return nil, fmt.Errorf("unmarshal question_scope: %w", err)
	}
	return &ev, nil
}

func (s *SQLite) UpdateEvaluation(ctx context.Context, ev *models.Evaluation) error {
	if ev == nil {
		return fmt.Errorf("evaluation is required")
	}
	modelIDs, scope, err := marshalEvaluationLists(ev)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE evaluations SET status = ?, model_ids = ?, question_scope = ?, question_count = ?,
		 mode = ?, start_time = ?, end_time = ?, error = ? WHERE id = ?`,
		string(ev.Status), modelIDs, scope, ev.QuestionCount, ev.Mode,
		formatTime(ev.StartTime), formatTimePtr(ev.EndTime), nullString(ev.Error), ev.ID)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) SaveResult(ctx context.Context, id string, result *models.EvaluationResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM evaluations WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("save result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluation_results (evaluation_id, result) VALUES (?, ?)
		 ON CONFLICT(evaluation_id) DO UPDATE SET result = excluded.result`,
		id, string(data))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *SQLite) GetResult(ctx context.Context, id string) (*models.EvaluationResult, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT result FROM evaluation_results WHERE evaluation_id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	var result models.EvaluationResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var options string
	if err := row.Scan(&q.ID, &q.Text, &options, &q.Correct, &q.KnowledgeUnit); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return nil, fmt.Errorf("unmarshal options: %w", err)
	}
	return &q, nil
}

func scanModel(row rowScanner) (*models.Model, error) {
	var (
		m                         models.Model
		format                    string
		apiKey, modelName, params sql.NullString
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Type, &m.Status, &apiKey, &modelName, &m.MaxRetries, &format, &params); err != nil {
		return nil, err
	}
	m.APIKey = apiKey.String
	m.ModelName = modelName.String
	m.ResponseFormat = models.ResponseFormat(format)
	if err := unmarshalNullable(params, &m.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return &m, nil
}

func marshalEvaluationLists(ev *models.Evaluation) (modelIDs, scope sql.NullString, err error) {
	if modelIDs, err = marshalNullable(ev.ModelIDs); err != nil {
		return modelIDs, scope, fmt.Errorf("marshal model_ids: %w", err)
	}
	if scope, err = marshalNullable(ev.KnowledgeUnits); err != nil {
		return modelIDs, scope, fmt.Errorf("marshal question_scope: %w", err)
	}
	return modelIDs, scope, nil
}

func marshalNullable[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalNullable[T any](s sql.NullString, v *T) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// Ensure SQLite satisfies Store.
var _ Store = (*SQLite)(nil)
