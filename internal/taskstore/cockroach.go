package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// CockroachConfig holds configuration for the CockroachDB connection.
type CockroachConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultCockroachConfig returns default configuration.
func DefaultCockroachConfig() *CockroachConfig {
	return &CockroachConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// CockroachStore implements Store against CockroachDB/Postgres, with
// indices on (context_id, status) and (parent_id) per spec.md §4.5.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStoreFromDSN opens a task store backed by CockroachDB.
func NewCockroachStoreFromDSN(dsn string, config *CockroachConfig) (*CockroachStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &CockroachStore{db: db}, nil
}

// Close releases database resources.
func (s *CockroachStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new pending task.
func (s *CockroachStore) Create(ctx context.Context, spec TaskSpec) (string, error) {
	if spec.ContextID == "" {
		return "", fmt.Errorf("context_id is required")
	}
	if spec.Priority == "" {
		spec.Priority = PriorityMedium
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, parent_id, context_id, title, description, category,
			priority, status, assigned_agent_id, created_at, started_at,
			finished_at, result, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		id,
		nullableString(spec.ParentID),
		spec.ContextID,
		spec.Title,
		nullableString(spec.Description),
		nullableString(spec.Category),
		string(spec.Priority),
		string(StatusPending),
		nullableString(""),
		now,
		nullableTime(nil),
		nullableTime(nil),
		nullJSON(nil),
		nullJSON(nil),
	)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	if err := s.appendUpdate(ctx, id, UpdateKindStatus, map[string]any{"status": string(StatusPending)}); err != nil {
		return "", err
	}
	return id, nil
}

// Get retrieves a task by ID.
func (s *CockroachStore) Get(ctx context.Context, taskID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, context_id, title, description, category,
		       priority, status, assigned_agent_id, created_at, started_at,
		       finished_at, result, error
		FROM tasks WHERE id = $1
	`, taskID)
	return scanTask(row)
}

// UpdateStatus enforces the legal transition table and appends a
// TaskUpdate of kind=status (spec.md §4.5).
func (s *CockroachStore) UpdateStatus(ctx context.Context, taskID string, next TaskStatus, reason string) error {
	task, err := s.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !task.Status.CanTransition(next) {
		return &IllegalTransitionError{TaskID: taskID, From: task.Status, To: next}
	}

	now := time.Now().UTC()
	var startedAt, finishedAt sql.NullTime
	if task.StartedAt != nil {
		startedAt = nullableTime(task.StartedAt)
	}
	if next == StatusRunning && task.StartedAt == nil {
		startedAt = nullableTime(&now)
	}
	if next.Terminal() {
		finishedAt = nullableTime(&now)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, started_at = $3, finished_at = $4
		WHERE id = $1
	`, taskID, string(next), startedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	payload := map[string]any{"status": string(next)}
	if reason != "" {
		payload["reason"] = reason
	}
	return s.appendUpdate(ctx, taskID, UpdateKindStatus, payload)
}

// AttachResult records a success payload.
func (s *CockroachStore) AttachResult(ctx context.Context, taskID string, result map[string]any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET result = $2 WHERE id = $1`, taskID, resultJSON); err != nil {
		return fmt.Errorf("attach result: %w", err)
	}
	return s.appendUpdate(ctx, taskID, UpdateKindAnnotation, map[string]any{"result": result})
}

// AttachError records a structured failure payload.
func (s *CockroachStore) AttachError(ctx context.Context, taskID string, taskErr TaskError) error {
	errJSON, err := json.Marshal(taskErr)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE tasks SET error = $2 WHERE id = $1`, taskID, errJSON); err != nil {
		return fmt.Errorf("attach error: %w", err)
	}
	return s.appendUpdate(ctx, taskID, UpdateKindAnnotation, map[string]any{"error": taskErr})
}

// Query returns tasks matching filter, most recent first.
func (s *CockroachStore) Query(ctx context.Context, filter Filter) ([]*Task, error) {
	query := `
		SELECT id, parent_id, context_id, title, description, category,
		       priority, status, assigned_agent_id, created_at, started_at,
		       finished_at, result, error
		FROM tasks WHERE 1=1
	`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.ContextID != "" {
		query += " AND context_id = " + arg(filter.ContextID)
	}
	if filter.ParentID != "" {
		query += " AND parent_id = " + arg(filter.ParentID)
	}
	if filter.Status != nil {
		query += " AND status = " + arg(string(*filter.Status))
	}
	if filter.Priority != nil {
		query += " AND priority = " + arg(string(*filter.Priority))
	}
	if filter.Since != nil {
		query += " AND created_at >= " + arg(*filter.Since)
	}
	if filter.Until != nil {
		query += " AND created_at <= " + arg(*filter.Until)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Stats aggregates counts by status, success rate, and mean duration.
func (s *CockroachStore) Stats(ctx context.Context) (TaskStats, error) {
	stats := TaskStats{CountByStatus: make(map[TaskStatus]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM tasks GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("stats by status: %w", err)
	}
	var total, succeeded int
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.CountByStatus[TaskStatus(status)] = count
		total += count
		if TaskStatus(status) == StatusSucceeded {
			succeeded = count
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if terminal := stats.CountByStatus[StatusSucceeded] + stats.CountByStatus[StatusFailed] + stats.CountByStatus[StatusCancelled]; terminal > 0 {
		stats.SuccessRate = float64(succeeded) / float64(terminal)
	}

	var meanSeconds sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (finished_at - started_at)))
		FROM tasks WHERE finished_at IS NOT NULL AND started_at IS NOT NULL
	`).Scan(&meanSeconds)
	if err != nil {
		return stats, fmt.Errorf("stats mean duration: %w", err)
	}
	if meanSeconds.Valid {
		stats.MeanDuration = time.Duration(meanSeconds.Float64 * float64(time.Second))
	}
	return stats, nil
}

// AppendUpdate appends a progress/annotation/quality TaskUpdate.
func (s *CockroachStore) AppendUpdate(ctx context.Context, taskID string, kind TaskUpdateKind, payload map[string]any) error {
	return s.appendUpdate(ctx, taskID, kind, payload)
}

func (s *CockroachStore) appendUpdate(ctx context.Context, taskID string, kind TaskUpdateKind, payload map[string]any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal update payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_updates (id, task_id, at, kind, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), taskID, time.Now().UTC(), string(kind), payloadJSON)
	if err != nil {
		return fmt.Errorf("append task update: %w", err)
	}
	return nil
}

// ListUpdates returns a task's TaskUpdates in append order.
func (s *CockroachStore) ListUpdates(ctx context.Context, taskID string) ([]*TaskUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, at, kind, payload FROM task_updates
		WHERE task_id = $1 ORDER BY at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task updates: %w", err)
	}
	defer rows.Close()

	var updates []*TaskUpdate
	for rows.Next() {
		var u TaskUpdate
		var kind string
		var payloadJSON []byte
		if err := rows.Scan(&u.UpdateID, &u.TaskID, &u.At, &kind, &payloadJSON); err != nil {
			return nil, err
		}
		u.Kind = TaskUpdateKind(kind)
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &u.Payload); err != nil {
				return nil, err
			}
		}
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}

// Children returns the direct children of a task.
func (s *CockroachStore) Children(ctx context.Context, taskID string) ([]*Task, error) {
	return s.Query(ctx, Filter{ParentID: taskID})
}

// Reconcile resets stuck scheduled/running tasks back to pending, per
// spec.md §4.5's startup reconciliation sweep. It does not track per-agent
// claims itself; the caller (Scheduler) defines "no agent claims them" by
// simply not having reassigned an AssignedAgentID within window.
func (s *CockroachStore) Reconcile(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window)
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $1, assigned_agent_id = NULL
		WHERE status IN ($2, $3) AND created_at < $4
	`, string(StatusPending), string(StatusScheduled), string(StatusRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reconcile tasks: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var parentID, description, category, assignedAgentID sql.NullString
	var priority, status string
	var startedAt, finishedAt sql.NullTime
	var resultJSON, errorJSON []byte

	err := s.Scan(
		&t.TaskID, &parentID, &t.ContextID, &t.Title, &description, &category,
		&priority, &status, &assignedAgentID, &t.CreatedAt, &startedAt,
		&finishedAt, &resultJSON, &errorJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task not found: %w", err)
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.ParentID = parentID.String
	t.Description = description.String
	t.Category = category.String
	t.AssignedAgentID = assignedAgentID.String
	t.Priority = TaskPriority(priority)
	t.Status = TaskStatus(status)
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Time
		t.FinishedAt = &v
	}
	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &t.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if len(errorJSON) > 0 {
		var taskErr TaskError
		if err := json.Unmarshal(errorJSON, &taskErr); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
		t.Error = &taskErr
	}
	return &t, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullJSON(v any) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
