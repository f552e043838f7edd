package taskstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store, used by the scheduler, runtime, and
// guardrail tests so they never need a live database (mirrors the
// teacher's memory/cockroach store pairing).
type MemoryStore struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	updates map[string][]*TaskUpdate
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks:   make(map[string]*Task),
		updates: make(map[string][]*TaskUpdate),
	}
}

func cloneTask(t *Task) *Task {
	cp := *t
	if t.StartedAt != nil {
		v := *t.StartedAt
		cp.StartedAt = &v
	}
	if t.FinishedAt != nil {
		v := *t.FinishedAt
		cp.FinishedAt = &v
	}
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	if t.Result != nil {
		cp.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}

// Create inserts a new pending task.
func (m *MemoryStore) Create(ctx context.Context, spec TaskSpec) (string, error) {
	if spec.Priority == "" {
		spec.Priority = PriorityMedium
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	task := &Task{
		TaskID:      id,
		ParentID:    spec.ParentID,
		ContextID:   spec.ContextID,
		Title:       spec.Title,
		Description: spec.Description,
		Category:    spec.Category,
		Priority:    spec.Priority,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.tasks[id] = task
	m.appendLocked(id, UpdateKindStatus, map[string]any{"status": string(StatusPending)})
	return id, nil
}

// Get retrieves a task by ID.
func (m *MemoryStore) Get(ctx context.Context, taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, &taskNotFoundError{taskID}
	}
	return cloneTask(task), nil
}

// UpdateStatus enforces the legal transition table and appends a
// TaskUpdate of kind=status.
func (m *MemoryStore) UpdateStatus(ctx context.Context, taskID string, next TaskStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[taskID]
	if !ok {
		return &taskNotFoundError{taskID}
	}
	if !task.Status.CanTransition(next) {
		return &IllegalTransitionError{TaskID: taskID, From: task.Status, To: next}
	}

	now := time.Now().UTC()
	if next == StatusRunning && task.StartedAt == nil {
		task.StartedAt = &now
	}
	task.Status = next
	if next.Terminal() {
		task.FinishedAt = &now
	}

	payload := map[string]any{"status": string(next)}
	if reason != "" {
		payload["reason"] = reason
	}
	m.appendLocked(taskID, UpdateKindStatus, payload)
	return nil
}

// AttachResult records a success payload.
func (m *MemoryStore) AttachResult(ctx context.Context, taskID string, result map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return &taskNotFoundError{taskID}
	}
	task.Result = result
	m.appendLocked(taskID, UpdateKindAnnotation, map[string]any{"result": result})
	return nil
}

// AttachError records a structured failure payload.
func (m *MemoryStore) AttachError(ctx context.Context, taskID string, taskErr TaskError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return &taskNotFoundError{taskID}
	}
	task.Error = &taskErr
	m.appendLocked(taskID, UpdateKindAnnotation, map[string]any{"error": taskErr})
	return nil
}

// Query returns tasks matching filter, most recent first.
func (m *MemoryStore) Query(ctx context.Context, filter Filter) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Task
	for _, task := range m.tasks {
		if filter.ContextID != "" && task.ContextID != filter.ContextID {
			continue
		}
		if filter.ParentID != "" && task.ParentID != filter.ParentID {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		if filter.Priority != nil && task.Priority != *filter.Priority {
			continue
		}
		if filter.Since != nil && task.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && task.CreatedAt.After(*filter.Until) {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Stats aggregates counts by status, success rate, and mean duration.
func (m *MemoryStore) Stats(ctx context.Context) (TaskStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := TaskStats{CountByStatus: make(map[TaskStatus]int)}
	var totalDuration time.Duration
	var finishedCount int
	var succeeded, terminal int

	for _, task := range m.tasks {
		stats.CountByStatus[task.Status]++
		if task.Status.Terminal() {
			terminal++
			if task.Status == StatusSucceeded {
				succeeded++
			}
		}
		if task.StartedAt != nil && task.FinishedAt != nil {
			totalDuration += task.FinishedAt.Sub(*task.StartedAt)
			finishedCount++
		}
	}
	if terminal > 0 {
		stats.SuccessRate = float64(succeeded) / float64(terminal)
	}
	if finishedCount > 0 {
		stats.MeanDuration = totalDuration / time.Duration(finishedCount)
	}
	return stats, nil
}

// AppendUpdate appends a progress/annotation/quality TaskUpdate.
func (m *MemoryStore) AppendUpdate(ctx context.Context, taskID string, kind TaskUpdateKind, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return &taskNotFoundError{taskID}
	}
	m.appendLocked(taskID, kind, payload)
	return nil
}

func (m *MemoryStore) appendLocked(taskID string, kind TaskUpdateKind, payload map[string]any) {
	m.updates[taskID] = append(m.updates[taskID], &TaskUpdate{
		UpdateID: uuid.NewString(),
		TaskID:   taskID,
		At:       time.Now().UTC(),
		Kind:     kind,
		Payload:  payload,
	})
}

// ListUpdates returns a task's TaskUpdates in append order.
func (m *MemoryStore) ListUpdates(ctx context.Context, taskID string) ([]*TaskUpdate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*TaskUpdate, len(m.updates[taskID]))
	copy(out, m.updates[taskID])
	return out, nil
}

// Children returns the direct children of a task.
func (m *MemoryStore) Children(ctx context.Context, taskID string) ([]*Task, error) {
	return m.Query(ctx, Filter{ParentID: taskID})
}

// Reconcile resets stuck scheduled/running tasks back to pending.
func (m *MemoryStore) Reconcile(ctx context.Context, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-window)
	var n int
	for _, task := range m.tasks {
		if (task.Status == StatusScheduled || task.Status == StatusRunning) && task.CreatedAt.Before(cutoff) {
			task.Status = StatusPending
			task.AssignedAgentID = ""
			m.appendLocked(task.TaskID, UpdateKindStatus, map[string]any{"status": string(StatusPending), "reason": "reconciled"})
			n++
		}
	}
	return n, nil
}

type taskNotFoundError struct {
	taskID string
}

func (e *taskNotFoundError) Error() string {
	return "taskstore: task not found: " + e.taskID
}
