// Package eventbus implements the append-only per-context event log
// described in spec.md §4.1: monotonic event_no ordering, log_guid
// rotation on reset, and long-poll reads that block until new events
// arrive or a deadline elapses.
package eventbus

import (
	"context"
	"time"

	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

type (
	Event     = models.Event
	EventType = models.EventType
	Context   = models.Context
)

const (
	TypeUser       = models.EventTypeUser
	TypeAssistant  = models.EventTypeAssistant
	TypeToolCall   = models.EventTypeToolCall
	TypeToolResult = models.EventTypeToolResult
	TypeThought    = models.EventTypeThought
	TypeProgress   = models.EventTypeProgress
	TypeError      = models.EventTypeError
)

// NewEvent is the caller-facing input to Append: everything known before
// the bus assigns event_no and timestamp.
type NewEvent struct {
	ID      string
	Type    EventType
	Heading string
	Content string
	KVPs    []models.KV
	Temp    bool
}

// Snapshot is the long-poll read result (spec.md §4.1 "read()").
type Snapshot struct {
	LogGUID        string
	LogVersion     uint64
	Events         []Event
	ProgressActive bool
	Progress       string
}

// DefaultDeadline bounds a blocking read when the caller does not specify
// one (spec.md §4.1: "a few seconds").
const DefaultDeadline = 3 * time.Second

// HighWaterMark is the back-pressure threshold on the buffered append
// queue (spec.md §5, configurable via log.buffer_highwater).
const HighWaterMark = 10_000

// Bus is the Event Bus & Log Store contract.
type Bus interface {
	// Append adds an event to context_id's log, assigning it the next
	// event_no and incrementing log_version. A temp event sharing an ID
	// with a prior temp event tombstones the prior one rather than
	// mutating it in place.
	Append(ctx context.Context, contextID string, event NewEvent) (uint64, error)

	// Read blocks up to deadline (or DefaultDeadline if zero) until
	// log_version advances past fromVersion, then returns the current
	// snapshot. If the caller's logGUID differs from the context's
	// current one, the full replay from version 0 is returned instead.
	Read(ctx context.Context, contextID string, fromVersion uint64, logGUID string, deadline time.Duration) (Snapshot, error)

	// Reset rotates log_guid, zeroes log_version, and empties the log.
	Reset(ctx context.Context, contextID string) (newLogGUID string, err error)
}
