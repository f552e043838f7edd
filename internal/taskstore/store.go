package taskstore

import (
	"context"
	"time"
)

// Store is the persistent task graph: {tasks, task_updates} with indices on
// (context_id, status) and (parent_id), per spec.md §4.5.
type Store interface {
	// Create inserts a new task in status=pending and returns its task_id.
	Create(ctx context.Context, spec TaskSpec) (string, error)

	// Get retrieves a task by ID.
	Get(ctx context.Context, taskID string) (*Task, error)

	// UpdateStatus enforces the legal transition table, stamps
	// StartedAt/FinishedAt as required, and appends a TaskUpdate of
	// kind=status. An illegal transition returns *IllegalTransitionError.
	UpdateStatus(ctx context.Context, taskID string, next TaskStatus, reason string) error

	// AttachResult records the success payload on a running task and
	// appends a TaskUpdate.
	AttachResult(ctx context.Context, taskID string, result map[string]any) error

	// AttachError records the failure payload on a running task and
	// appends a TaskUpdate.
	AttachError(ctx context.Context, taskID string, taskErr TaskError) error

	// Query returns tasks matching the filter.
	Query(ctx context.Context, filter Filter) ([]*Task, error)

	// Stats aggregates counts by status, success rate, and mean duration.
	Stats(ctx context.Context) (TaskStats, error)

	// AppendUpdate appends an arbitrary TaskUpdate (progress, annotation,
	// or quality) without touching the task's status.
	AppendUpdate(ctx context.Context, taskID string, kind TaskUpdateKind, payload map[string]any) error

	// ListUpdates returns a task's TaskUpdates in append order.
	ListUpdates(ctx context.Context, taskID string) ([]*TaskUpdate, error)

	// Children returns the direct children of a task (parent/child DAG
	// traversal for cycle checks and cascading queries).
	Children(ctx context.Context, taskID string) ([]*Task, error)

	// Reconcile resets tasks stuck in scheduled/running with no claiming
	// agent for longer than window back to pending, per spec.md §4.5's
	// startup reconciliation sweep.
	Reconcile(ctx context.Context, window time.Duration) (int, error)
}

// Closer is implemented by stores that hold an underlying connection.
type Closer interface {
	Close() error
}
