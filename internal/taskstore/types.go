// Package taskstore persists the task graph described in spec.md §4.5: a
// DAG of Task records with a pending->scheduled->running->terminal
// lifecycle, each transition recorded as an append-only TaskUpdate.
package taskstore

import (
	"time"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// Task, TaskStatus, TaskPriority, TaskUpdate, and TaskUpdateKind are the
// canonical spec data model and live in pkg/models so the Scheduler, Agent
// Runtime, and Context Manager can reference them without importing this
// package's storage concerns.
type (
	Task           = models.Task
	TaskStatus     = models.TaskStatus
	TaskPriority   = models.TaskPriority
	TaskError      = models.TaskError
	TaskUpdate     = models.TaskUpdate
	TaskUpdateKind = models.TaskUpdateKind
)

const (
	StatusPending   = models.TaskStatusPending
	StatusScheduled = models.TaskStatusScheduled
	StatusRunning   = models.TaskStatusRunning
	StatusSucceeded = models.TaskStatusSucceeded
	StatusFailed    = models.TaskStatusFailed
	StatusCancelled = models.TaskStatusCancelled
)

const (
	PriorityCritical = models.TaskPriorityCritical
	PriorityHigh     = models.TaskPriorityHigh
	PriorityMedium   = models.TaskPriorityMedium
	PriorityLow      = models.TaskPriorityLow
)

const (
	UpdateKindStatus     = models.TaskUpdateKindStatus
	UpdateKindProgress   = models.TaskUpdateKindProgress
	UpdateKindAnnotation = models.TaskUpdateKindAnnotation
	UpdateKindQuality    = models.TaskUpdateKindQuality
)

// TaskSpec is the input to Create: everything the caller supplies about a
// new task before the store assigns identity and lifecycle fields
// (spec.md §4.5 "create(task_spec) -> task_id").
type TaskSpec struct {
	ParentID    string
	ContextID   string
	Title       string
	Description string
	Category    string
	Priority    TaskPriority
}

// TaskStats summarizes the graph for dashboards and load-aware dispatch
// (spec.md §4.5 "stats()").
type TaskStats struct {
	CountByStatus map[TaskStatus]int
	SuccessRate   float64
	MeanDuration  time.Duration
}

// IllegalTransitionError is returned by UpdateStatus when the requested
// transition is not in the state machine's allowed set.
type IllegalTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *IllegalTransitionError) Error() string {
	return "taskstore: illegal transition " + string(e.From) + " -> " + string(e.To) + " for task " + e.TaskID
}

// CycleError is returned when a parent assignment would create a cycle in
// the parent/child relation (spec.md §4.5 invariant: no cycles).
type CycleError struct {
	TaskID   string
	ParentID string
}

func (e *CycleError) Error() string {
	return "taskstore: assigning parent " + e.ParentID + " to task " + e.TaskID + " would create a cycle"
}

// Filter selects tasks for query() (spec.md §4.5 "query(filter)").
type Filter struct {
	ContextID string
	ParentID  string
	Status    *TaskStatus
	Priority  *TaskPriority
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}
