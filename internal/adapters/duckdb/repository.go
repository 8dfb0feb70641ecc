package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/aule-router/internal/config"
	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
)

const defaultListLimit = 100

var schema = []string{
	`CREATE TABLE IF NOT EXISTS executions (
		id            VARCHAR PRIMARY KEY,
		model_id      VARCHAR NOT NULL,
		task_id       VARCHAR,
		start_time    TIMESTAMP NOT NULL,
		end_time      TIMESTAMP NOT NULL,
		duration_ms   BIGINT,
		input_tokens  INTEGER,
		output_tokens INTEGER,
		success       BOOLEAN NOT NULL,
		error         VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS evaluations (
		model_id            VARCHAR NOT NULL,
		category            VARCHAR NOT NULL,
		accuracy            DOUBLE,
		latency_ms          DOUBLE,
		quality             DOUBLE,
		resource_efficiency DOUBLE,
		satisfaction        DOUBLE,
		recorded_at         TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key        VARCHAR PRIMARY KEY,
		value      VARCHAR NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// Repository archives routing history and settings in DuckDB.
type Repository struct {
	db *sql.DB
}

var (
	_ ports.HistoryRepository   = (*Repository)(nil)
	_ config.SettingsRepository = (*Repository)(nil)
)

// NewRepository opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// in-memory databases are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, model_id, task_id, start_time, end_time, duration_ms,
		                        input_tokens, output_tokens, success, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.ModelID,
		rec.TaskID,
		rec.StartTime.UTC(),
		rec.EndTime.UTC(),
		rec.Duration().Milliseconds(),
		rec.InputTokens,
		rec.OutputTokens,
		rec.Success,
		rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// ListExecutions returns the most recent archived executions, newest first.
func (r *Repository) ListExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, model_id, task_id, start_time, end_time, input_tokens, output_tokens, success, error
		FROM executions
		ORDER BY start_time DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := []domain.ExecutionRecord{}
	for rows.Next() {
		var rec domain.ExecutionRecord
		var taskID, errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ModelID, &taskID, &rec.StartTime, &rec.EndTime,
			&rec.InputTokens, &rec.OutputTokens, &rec.Success, &errMsg); err != nil {
			return nil, err
		}
		rec.TaskID = taskID.String
		rec.Error = errMsg.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *Repository) SaveEvaluation(ctx context.Context, modelID string, category domain.TaskCategory, eval domain.Evaluation) error {
	recordedAt := eval.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO evaluations (model_id, category, accuracy, latency_ms, quality,
		                         resource_efficiency, satisfaction, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		modelID,
		string(category),
		eval.Accuracy,
		eval.Latency,
		eval.Quality,
		eval.ResourceEfficiency,
		eval.Satisfaction,
		recordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation for %s: %w", modelID, err)
	}
	return nil
}

// ListEvaluations returns archived evaluations of modelID, newest first.
func (r *Repository) ListEvaluations(ctx context.Context, modelID string, limit int) ([]domain.Evaluation, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT accuracy, latency_ms, quality, resource_efficiency, satisfaction, recorded_at
		FROM evaluations
		WHERE model_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	out := []domain.Evaluation{}
	for rows.Next() {
		var e domain.Evaluation
		if err := rows.Scan(&e.Accuracy, &e.Latency, &e.Quality, &e.ResourceEfficiency, &e.Satisfaction, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", config.ErrSettingNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}
	return nil
}
