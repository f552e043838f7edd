// export_import.go implements spec.md §4.8's export/import operation: a
// context plus its event log as a portable JSONL document (events, not
// tasks). Import always mints a fresh context_id.
package contextmgr

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/GaryOcean428/gary-zero-sub001/internal/eventbus"
	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// DocumentRecordKind discriminates the lines of an export document.
type DocumentRecordKind string

const (
	RecordKindHeader DocumentRecordKind = "context"
	RecordKindEvent  DocumentRecordKind = "event"
)

// DocumentRecord is one JSONL line of an exported context document.
type DocumentRecord struct {
	Kind    DocumentRecordKind `json:"kind"`
	Header  *ContextHeader     `json:"context,omitempty"`
	Event   *eventbus.Event    `json:"event,omitempty"`
}

// ContextHeader is the header record of an exported document.
type ContextHeader struct {
	ContextID string    `json:"context_id"`
	CreatedAt time.Time `json:"created_at"`
	Paused    bool      `json:"paused"`
}

// Export writes contextID's metadata and full event log as a portable
// JSONL document.
func Export(ctx context.Context, store Store, bus eventbus.Bus, contextID string, w io.Writer) error {
	c, err := store.Get(ctx, contextID)
	if err != nil {
		return fmt.Errorf("get context: %w", err)
	}

	snap, err := bus.Read(ctx, contextID, 0, "", time.Millisecond)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}

	enc := json.NewEncoder(w)
	header := DocumentRecord{Kind: RecordKindHeader, Header: &ContextHeader{
		ContextID: c.ContextID,
		CreatedAt: c.CreatedAt,
		Paused:    c.Paused,
	}}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for i := range snap.Events {
		ev := snap.Events[i]
		if err := enc.Encode(DocumentRecord{Kind: RecordKindEvent, Event: &ev}); err != nil {
			return fmt.Errorf("encode event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// ImportResult reports the outcome of Import.
type ImportResult struct {
	ContextID     string
	EventsApplied int
}

// Import reads a portable context document and materializes it under a
// freshly minted context_id (spec.md §4.8: "on import, a new context_id is
// minted").
func Import(ctx context.Context, store Store, bus eventbus.Bus, r io.Reader) (*ImportResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	newID := uuid.NewString()
	result := &ImportResult{ContextID: newID}

	var headerSeen bool
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec DocumentRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse record: %w", err)
		}

		switch rec.Kind {
		case RecordKindHeader:
			if rec.Header == nil {
				return nil, fmt.Errorf("header record missing context")
			}
			if err := store.Create(ctx, &models.Context{
				ContextID: newID,
				CreatedAt: time.Now().UTC(),
				Paused:    rec.Header.Paused,
			}); err != nil {
				return nil, fmt.Errorf("create context: %w", err)
			}
			headerSeen = true
		case RecordKindEvent:
			if !headerSeen {
				return nil, fmt.Errorf("event record before header")
			}
			if rec.Event == nil {
				return nil, fmt.Errorf("event record missing event")
			}
			ne := eventbus.NewEvent{
				Type:    rec.Event.Type,
				Heading: rec.Event.Heading,
				Content: rec.Event.Content,
				KVPs:    rec.Event.KVPs,
				Temp:    false,
			}
			if _, err := bus.Append(ctx, newID, ne); err != nil {
				return nil, fmt.Errorf("append event: %w", err)
			}
			result.EventsApplied++
		default:
			return nil, fmt.Errorf("unknown record kind %q", rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if !headerSeen {
		return nil, fmt.Errorf("document missing header record")
	}
	return result, nil
}
