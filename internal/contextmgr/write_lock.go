package contextmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

var (
	// ErrLockTimeout is returned when acquiring a lock times out.
	ErrLockTimeout = errors.New("contextmgr: lock acquisition timeout")

	// ErrLockHeld is returned when a lock is already held by another goroutine.
	ErrLockHeld = errors.New("contextmgr: lock held by another writer")
)

// DefaultLockTimeout is the default timeout for lock acquisition (5 seconds).
const DefaultLockTimeout = 5 * time.Second

// lockPollInterval is how often we check if a lock has been released.
const lockPollInterval = 10 * time.Millisecond

// contextMutex wraps a mutex for per-context locking.
type contextMutex struct {
	mu     sync.Mutex
	locked bool
}

// ContextLocker provides per-context_id write locks, serializing the
// post_message/pause/nudge/reset operations that mutate a single context's
// metadata (spec.md §4.8 operations are not internally atomic across
// concurrent callers without this).
type ContextLocker struct {
	locks   sync.Map // map[string]*contextMutex
	timeout time.Duration
}

// NewContextLocker creates a ContextLocker with the given default timeout.
// If timeout is <= 0, DefaultLockTimeout (5 seconds) is used.
func NewContextLocker(timeout time.Duration) *ContextLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &ContextLocker{timeout: timeout}
}

func (s *ContextLocker) getOrCreateMutex(contextID string) *contextMutex {
	if m, ok := s.locks.Load(contextID); ok {
		if mu, ok := m.(*contextMutex); ok {
			return mu
		}
	}
	newMu := &contextMutex{}
	actual, _ := s.locks.LoadOrStore(contextID, newMu)
	if mu, ok := actual.(*contextMutex); ok {
		return mu
	}
	return newMu
}

// Lock acquires a lock for the given context_id, blocking until available or
// the default timeout expires.
func (s *ContextLocker) Lock(contextID string) error {
	return s.LockWithTimeout(contextID, s.timeout)
}

// LockWithTimeout acquires a lock for the given context_id with a custom timeout.
func (s *ContextLocker) LockWithTimeout(contextID string, timeout time.Duration) error {
	m := s.getOrCreateMutex(contextID)
	deadline := time.Now().Add(timeout)

	for {
		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockPollInterval)
	}
}

// Unlock releases the lock for the given context_id. Safe to call even if
// the lock is not held.
func (s *ContextLocker) Unlock(contextID string) {
	if m, ok := s.locks.Load(contextID); ok {
		mu, ok := m.(*contextMutex)
		if !ok {
			return
		}
		mu.mu.Lock()
		mu.locked = false
		mu.mu.Unlock()
	}
}

// TryLock attempts to acquire a lock for the given context_id without blocking.
func (s *ContextLocker) TryLock(contextID string) bool {
	m := s.getOrCreateMutex(contextID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// IsLocked returns whether the given context_id is currently locked.
func (s *ContextLocker) IsLocked(contextID string) bool {
	if m, ok := s.locks.Load(contextID); ok {
		mu, ok := m.(*contextMutex)
		if !ok {
			return false
		}
		mu.mu.Lock()
		defer mu.mu.Unlock()
		return mu.locked
	}
	return false
}

// LockWithContext acquires a lock for the given context_id, respecting
// context cancellation.
func (s *ContextLocker) LockWithContext(ctx context.Context, contextID string) error {
	m := s.getOrCreateMutex(contextID)
	deadline := time.Now().Add(s.timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		m.mu.Lock()
		if !m.locked {
			m.locked = true
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()

		if time.Now().After(deadline) {
			return ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// LockingStore wraps a Store with automatic per-context_id write locking.
// All write operations acquire a lock before proceeding.
type LockingStore struct {
	Store
	locks  *ContextLocker
	holder string
}

// NewLockingStore creates a store wrapper with write locking. holder
// identifies this writer (e.g. "scheduler-worker-1") for diagnostics.
func NewLockingStore(store Store, locks *ContextLocker, holder string) *LockingStore {
	return &LockingStore{Store: store, locks: locks, holder: holder}
}

// Create creates a context with a write lock.
func (s *LockingStore) Create(ctx context.Context, c *models.Context) error {
	if err := s.locks.LockWithContext(ctx, c.ContextID); err != nil {
		return err
	}
	defer s.locks.Unlock(c.ContextID)
	return s.Store.Create(ctx, c)
}

// Update updates a context with a write lock.
func (s *LockingStore) Update(ctx context.Context, c *models.Context) error {
	if err := s.locks.LockWithContext(ctx, c.ContextID); err != nil {
		return err
	}
	defer s.locks.Unlock(c.ContextID)
	return s.Store.Update(ctx, c)
}

// Delete deletes a context with a write lock.
func (s *LockingStore) Delete(ctx context.Context, contextID string) error {
	if err := s.locks.LockWithContext(ctx, contextID); err != nil {
		return err
	}
	defer s.locks.Unlock(contextID)
	return s.Store.Delete(ctx, contextID)
}

// WithLock executes fn while holding the write lock for contextID. Useful
// for compound operations (e.g. nudge: read, mutate, write) that need
// atomic guarantees across the underlying Store.
func (s *LockingStore) WithLock(ctx context.Context, contextID string, fn func(Store) error) error {
	if err := s.locks.LockWithContext(ctx, contextID); err != nil {
		return err
	}
	defer s.locks.Unlock(contextID)
	return fn(s.Store)
}
