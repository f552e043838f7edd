package contextmgr

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/GaryOcean428/gary-zero-sub001/internal/eventbus"
	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// TaskEnqueuer is the Scheduler-facing seam post_message uses to enqueue the
// task it targets at the general pool (spec.md §4.8 "post_message"). Kept as
// a narrow interface so the Context Manager never depends on the Scheduler
// package directly.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, spec TaskSeed) (string, error)
}

// TaskSeed is the minimal shape the Context Manager hands to the Scheduler.
type TaskSeed struct {
	ContextID string
	Title     string
	Category  string
	Priority  models.TaskPriority
}

// Manager implements the Context Manager (spec.md §4.8): it binds
// conversational identifiers to runtime state and mediates the
// client-facing poll/append API, delegating the event log to eventbus.Bus.
type Manager struct {
	store  Store
	bus    eventbus.Bus
	tasks  TaskEnqueuer
	locker *ContextLocker
}

// NewManager constructs a Context Manager. tasks may be nil if the caller
// only needs read/poll access (e.g. a dashboard) without the ability to
// originate tasks via post_message.
func NewManager(store Store, bus eventbus.Bus, tasks TaskEnqueuer) *Manager {
	return &Manager{
		store:  store,
		bus:    bus,
		tasks:  tasks,
		locker: NewContextLocker(DefaultLockTimeout),
	}
}

// PostMessage implements spec.md §4.8 "post_message": creates a context if
// none exists, appends a user event, and enqueues a task targeting the
// general pool at medium priority.
func (m *Manager) PostMessage(ctx context.Context, contextID, text string, attachments map[string]any) (string, error) {
	if contextID == "" {
		contextID = uuid.NewString()
	}

	if err := m.locker.LockWithContext(ctx, contextID); err != nil {
		return "", err
	}
	defer m.locker.Unlock(contextID)

	if _, err := m.store.Get(ctx, contextID); err == ErrNotFound {
		if err := m.store.Create(ctx, &models.Context{
			ContextID: contextID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return "", fmt.Errorf("create context: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("get context: %w", err)
	}

	kvps := kvpsFromAttachments(attachments)
	if _, err := m.bus.Append(ctx, contextID, eventbus.NewEvent{
		Type:    eventbus.TypeUser,
		Content: text,
		KVPs:    kvps,
	}); err != nil {
		return "", fmt.Errorf("append user event: %w", err)
	}

	if m.tasks != nil {
		if _, err := m.tasks.Enqueue(ctx, TaskSeed{
			ContextID: contextID,
			Title:     truncateForTitle(text),
			Category:  "general",
			Priority:  models.TaskPriorityMedium,
		}); err != nil {
			return "", fmt.Errorf("enqueue task: %w", err)
		}
	}

	return contextID, nil
}

// Poll implements spec.md §4.8 "poll": delegates to the event bus's read,
// allocating a context if none exists yet and returning its new log_guid.
func (m *Manager) Poll(ctx context.Context, contextID string, fromVersion uint64, logGUID string, deadline time.Duration) (eventbus.Snapshot, error) {
	if _, err := m.store.Get(ctx, contextID); err == ErrNotFound {
		if err := m.store.Create(ctx, &models.Context{
			ContextID: contextID,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return eventbus.Snapshot{}, fmt.Errorf("allocate context: %w", err)
		}
	} else if err != nil {
		return eventbus.Snapshot{}, fmt.Errorf("get context: %w", err)
	}
	return m.bus.Read(ctx, contextID, fromVersion, logGUID, deadline)
}

// Pause sets or clears a context's paused flag. Pausing stops the
// Scheduler from dispatching new tasks against the context; it never
// blocks appends to the log (internal/eventbus enforces no such rule).
func (m *Manager) Pause(ctx context.Context, contextID string, value bool) error {
	return m.locker.WithLock(ctx, contextID, func(s Store) error {
		c, err := s.Get(ctx, contextID)
		if err != nil {
			return err
		}
		c.Paused = value
		return s.Update(ctx, c)
	})
}

func (m *Manager) WithLock(ctx context.Context, contextID string, fn func(Store) error) error {
	return m.locker.WithLock(ctx, contextID, fn)
}

// Nudge appends a zero-content progress event to wake a context's waiting
// pollers without altering task or log state otherwise — used to unstick a
// long-poll client after an out-of-band change (e.g. an operator action).
func (m *Manager) Nudge(ctx context.Context, contextID string) error {
	_, err := m.bus.Append(ctx, contextID, eventbus.NewEvent{
		Type: eventbus.TypeProgress,
		Temp: true,
	})
	if err != nil {
		return fmt.Errorf("nudge: %w", err)
	}
	return nil
}

// Reset rotates the context's log_guid and empties its event log
// (spec.md §4.1 "reset()", invoked here at the Context Manager's request).
func (m *Manager) Reset(ctx context.Context, contextID string) (string, error) {
	newGUID, err := m.bus.Reset(ctx, contextID)
	if err != nil {
		return "", fmt.Errorf("reset log: %w", err)
	}
	err = m.locker.WithLock(ctx, contextID, func(s Store) error {
		c, err := s.Get(ctx, contextID)
		if err != nil {
			return err
		}
		c.LogGUID = newGUID
		c.LogVersion = 0
		return s.Update(ctx, c)
	})
	if err != nil {
		return "", fmt.Errorf("persist reset: %w", err)
	}
	return newGUID, nil
}

// Remove deletes a context's metadata. The event log is left to the
// caller's retention policy (internal/eventbus has no per-context delete,
// matching spec.md's silence on log retention after removal).
func (m *Manager) Remove(ctx context.Context, contextID string) error {
	if err := m.store.Delete(ctx, contextID); err != nil {
		return fmt.Errorf("remove context: %w", err)
	}
	return nil
}

// Export implements spec.md §4.8 "export": a context plus its event log as
// a portable document.
func (m *Manager) Export(ctx context.Context, contextID string, w io.Writer) error {
	return Export(ctx, m.store, m.bus, contextID, w)
}

// Import implements spec.md §4.8 "import": materializes a portable
// document under a freshly minted context_id.
func (m *Manager) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	return Import(ctx, m.store, m.bus, r)
}

func kvpsFromAttachments(attachments map[string]any) []models.KV {
	if len(attachments) == 0 {
		return nil
	}
	kvps := make([]models.KV, 0, len(attachments))
	for k, v := range attachments {
		kvps = append(kvps, models.KV{Key: k, Value: v})
	}
	return kvps
}

func truncateForTitle(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
