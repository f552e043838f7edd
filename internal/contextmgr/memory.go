package contextmgr

import (
	"context"
	"sync"
	"time"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[string]*models.Context
}

// NewMemoryStore creates a new in-memory context store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contexts: map[string]*models.Context{}}
}

func (m *MemoryStore) Create(ctx context.Context, c *models.Context) error {
	if c == nil {
		return notFoundError{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneContext(c)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	c.CreatedAt = clone.CreatedAt
	m.contexts[clone.ContextID] = clone
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, contextID string) (*models.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contexts[contextID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneContext(c), nil
}

func (m *MemoryStore) Update(ctx context.Context, c *models.Context) error {
	if c == nil {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.contexts[c.ContextID]
	if !ok {
		return ErrNotFound
	}
	clone := cloneContext(c)
	clone.CreatedAt = existing.CreatedAt
	m.contexts[clone.ContextID] = clone
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contexts[contextID]; !ok {
		return ErrNotFound
	}
	delete(m.contexts, contextID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]*models.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Context
	for _, c := range m.contexts {
		if opts.PausedOnly && !c.Paused {
			continue
		}
		out = append(out, cloneContext(c))
	}

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	if start > len(out) {
		return []*models.Context{}, nil
	}
	return out[start:end], nil
}

func cloneContext(c *models.Context) *models.Context {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
