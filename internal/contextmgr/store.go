// Package contextmgr implements the Context Manager (spec.md §4.8): it
// binds conversational identifiers to runtime state and mediates the
// client-facing poll/append API, delegating the event log itself to
// internal/eventbus.
package contextmgr

import (
	"context"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// Store persists Context metadata (everything except the event log, which
// internal/eventbus owns). Create/Get/Update/Delete mirror the teacher's
// session-store shape; the fields they carry are spec.md §4.8's instead.
type Store interface {
	Create(ctx context.Context, c *models.Context) error
	Get(ctx context.Context, contextID string) (*models.Context, error)
	Update(ctx context.Context, c *models.Context) error
	Delete(ctx context.Context, contextID string) error
	List(ctx context.Context, opts ListOptions) ([]*models.Context, error)
}

// ListOptions configures context listing.
type ListOptions struct {
	PausedOnly bool
	Limit      int
	Offset     int
}

// ErrNotFound is returned by Store.Get/Update/Delete for an unknown context_id.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "contextmgr: context not found" }
