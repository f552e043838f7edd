package eventbus

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newEventID generates a sortable, monotonic ID for events that don't
// need to coalesce with a prior streaming update, per SPEC_FULL's
// DOMAIN STACK binding of oklog/ulid to Event IDs.
func newEventID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}

type contextLog struct {
	logGUID    string
	logVersion uint64
	events     []Event
	tombstoned map[string]bool // event.ID -> superseded
	notify     chan struct{}
}

func newContextLog() *contextLog {
	return &contextLog{
		logGUID:    newEventID(),
		tombstoned: make(map[string]bool),
		notify:     make(chan struct{}),
	}
}

func (c *contextLog) broadcast() {
	close(c.notify)
	c.notify = make(chan struct{})
}

// visible returns the non-tombstoned events with event_no > fromVersion.
func (c *contextLog) visible(fromVersion uint64) []Event {
	var out []Event
	for _, e := range c.events {
		if e.EventNo <= fromVersion {
			continue
		}
		if c.tombstoned[e.ID] && e.EventNo != c.latestEventNo(e.ID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *contextLog) latestEventNo(id string) uint64 {
	var latest uint64
	for _, e := range c.events {
		if e.ID == id && e.EventNo > latest {
			latest = e.EventNo
		}
	}
	return latest
}

// MemoryBus is an in-process Bus, used by the Scheduler, Agent Runtime,
// and Context Manager tests so they never need a live database (the same
// memory/cockroach pairing the teacher uses for every store interface).
type MemoryBus struct {
	mu       sync.Mutex
	contexts map[string]*contextLog
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{contexts: make(map[string]*contextLog)}
}

func (b *MemoryBus) logFor(contextID string) *contextLog {
	log, ok := b.contexts[contextID]
	if !ok {
		log = newContextLog()
		b.contexts[contextID] = log
	}
	return log
}

// Append adds an event to context_id's log (spec.md §4.1 "append()").
// Writes succeed even on a paused context; pause affects the Scheduler,
// not the log.
func (b *MemoryBus) Append(ctx context.Context, contextID string, ev NewEvent) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.logFor(contextID)
	if ev.ID == "" {
		ev.ID = newEventID()
	}
	if prev := log.latestEventNo(ev.ID); prev > 0 {
		log.tombstoned[ev.ID] = true
	}

	log.logVersion++
	event := Event{
		EventNo:   log.logVersion,
		ID:        ev.ID,
		ContextID: contextID,
		Type:      ev.Type,
		Heading:   ev.Heading,
		Content:   ev.Content,
		KVPs:      ev.KVPs,
		Temp:      ev.Temp,
		Timestamp: time.Now().UTC(),
	}
	log.events = append(log.events, event)
	log.broadcast()
	return event.EventNo, nil
}

// Read blocks until log_version advances past fromVersion or deadline
// elapses, per spec.md §4.1 "read()". An unknown context or a mismatched
// log_guid returns the full replay from version 0 immediately.
func (b *MemoryBus) Read(ctx context.Context, contextID string, fromVersion uint64, logGUID string, deadline time.Duration) (Snapshot, error) {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	b.mu.Lock()
	log := b.logFor(contextID)
	if logGUID != "" && logGUID != log.logGUID {
		snap := Snapshot{LogGUID: log.logGUID, LogVersion: log.logVersion, Events: log.visible(0)}
		b.mu.Unlock()
		return snap, nil
	}
	if log.logVersion > fromVersion {
		snap := Snapshot{LogGUID: log.logGUID, LogVersion: log.logVersion, Events: log.visible(fromVersion)}
		b.mu.Unlock()
		return snap, nil
	}
	wait := log.notify
	b.mu.Unlock()

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-timer.C:
		b.mu.Lock()
		defer b.mu.Unlock()
		log = b.logFor(contextID)
		return Snapshot{LogGUID: log.logGUID, LogVersion: log.logVersion, Events: log.visible(fromVersion)}, nil
	case <-wait:
		b.mu.Lock()
		defer b.mu.Unlock()
		log = b.logFor(contextID)
		if logGUID != "" && logGUID != log.logGUID {
			return Snapshot{LogGUID: log.logGUID, LogVersion: log.logVersion, Events: log.visible(0)}, nil
		}
		return Snapshot{LogGUID: log.logGUID, LogVersion: log.logVersion, Events: log.visible(fromVersion)}, nil
	}
}

// Reset rotates log_guid, zeroes log_version, and empties the log.
func (b *MemoryBus) Reset(ctx context.Context, contextID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	log := newContextLog()
	old := b.contexts[contextID]
	if old != nil {
		old.broadcast()
	}
	b.contexts[contextID] = log
	return log.logGUID, nil
}
