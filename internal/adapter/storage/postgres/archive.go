// Package postgres adapts pgx to the TaskArchive port. Terminal task records
// land here once evicted from the orchestrator's active table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	postgresql "github.com/devgrid/agent-orchestrator/config/storage/postgresql"
	"github.com/devgrid/agent-orchestrator/internal/core/domain"
	"github.com/devgrid/agent-orchestrator/internal/core/port"
)

type taskArchive struct {
	db  *postgresql.DB
	log *zap.Logger
}

// NewTaskArchive creates the Postgres-backed task archive.
func NewTaskArchive(db *postgresql.DB, log *zap.Logger) port.TaskArchive {
	return &taskArchive{db: db, log: log}
}

func (a *taskArchive) Save(ctx context.Context, rec *domain.TaskRecord) error {
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	taskErrors, err := json.Marshal(rec.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	query := `
		INSERT INTO task_archive (id, task_type, execution_mode, agents, status, results, errors, created_at, finished_at, execution_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			results = EXCLUDED.results,
			errors = EXCLUDED.errors,
			finished_at = EXCLUDED.finished_at,
			execution_time = EXCLUDED.execution_time
	`
	_, err = a.db.Exec(ctx, query,
		rec.ID, rec.Request.TaskType, string(rec.Request.Mode), rec.Request.Agents,
		string(rec.Status), results, taskErrors,
		rec.CreatedAt, rec.FinishedAt, rec.ExecutionTime)
	if err != nil {
		a.log.Error("Failed to archive task", zap.String("task_id", rec.ID), zap.Error(err))
		return err
	}
	return nil
}

func (a *taskArchive) GetByID(ctx context.Context, id string) (*domain.TaskRecord, error) {
	query := `
		SELECT id, task_type, execution_mode, agents, status, results, errors, created_at, finished_at, execution_time
		FROM task_archive WHERE id = $1
	`
	rec, err := a.scanRecord(a.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	return rec, err
}

func (a *taskArchive) ListRecent(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.TaskRecord, error) {
	builder := a.db.QueryBuilder.
		Select("id", "task_type", "execution_mode", "agents", "status", "results", "errors", "created_at", "finished_at", "execution_time").
		From("task_archive").
		OrderBy("finished_at DESC").
		Limit(uint64(limit))
	if status != "" {
		builder = builder.Where("status = ?", string(status))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.TaskRecord
	for rows.Next() {
		rec, err := a.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (a *taskArchive) scanRecord(row pgx.Row) (*domain.TaskRecord, error) {
	var (
		rec        domain.TaskRecord
		mode       string
		status     string
		results    []byte
		taskErrors []byte
	)
	if err := row.Scan(&rec.ID, &rec.Request.TaskType, &mode, &rec.Request.Agents,
		&status, &results, &taskErrors,
		&rec.CreatedAt, &rec.FinishedAt, &rec.ExecutionTime); err != nil {
		return nil, err
	}
	rec.Request.Mode = domain.ExecutionMode(mode)
	rec.Status = domain.TaskStatus(status)
	if err := json.Unmarshal(results, &rec.Results); err != nil {
		return nil, fmt.Errorf("unmarshal results: %w", err)
	}
	if err := json.Unmarshal(taskErrors, &rec.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return &rec, nil
}
