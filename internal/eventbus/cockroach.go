package eventbus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// CockroachBus persists the event log in Postgres/CockroachDB: an
// append-only "events" table keyed by (context_id, event_no) plus a
// "contexts" table carrying log_guid/log_version/paused, per spec.md §4.1.
type CockroachBus struct {
	db *sql.DB
}

// NewCockroachBus opens an event bus backed by CockroachDB.
func NewCockroachBus(db *sql.DB) *CockroachBus {
	return &CockroachBus{db: db}
}

func (b *CockroachBus) ensureContext(ctx context.Context, contextID string) (string, uint64, error) {
	var logGUID string
	var logVersion uint64
	err := b.db.QueryRowContext(ctx, `
		SELECT log_guid, log_version FROM contexts WHERE context_id = $1
	`, contextID).Scan(&logGUID, &logVersion)
	if err == sql.ErrNoRows {
		logGUID = newEventID()
		_, err = b.db.ExecContext(ctx, `
			INSERT INTO contexts (context_id, created_at, paused, log_guid, log_version)
			VALUES ($1, $2, false, $3, 0)
			ON CONFLICT (context_id) DO NOTHING
		`, contextID, time.Now().UTC(), logGUID)
		if err != nil {
			return "", 0, fmt.Errorf("create context: %w", err)
		}
		return logGUID, 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("load context: %w", err)
	}
	return logGUID, logVersion, nil
}

// Append adds an event to context_id's log.
func (b *CockroachBus) Append(ctx context.Context, contextID string, ev NewEvent) (uint64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if ev.ID == "" {
		ev.ID = newEventID()
	}

	var logVersion uint64
	err = tx.QueryRowContext(ctx, `
		UPDATE contexts SET log_version = log_version + 1 WHERE context_id = $1
		RETURNING log_version
	`, contextID).Scan(&logVersion)
	if err == sql.ErrNoRows {
		if _, _, err := b.ensureContext(ctx, contextID); err != nil {
			return 0, err
		}
		err = tx.QueryRowContext(ctx, `
			UPDATE contexts SET log_version = log_version + 1 WHERE context_id = $1
			RETURNING log_version
		`, contextID).Scan(&logVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("increment log_version: %w", err)
	}

	kvpsJSON, err := json.Marshal(ev.KVPs)
	if err != nil {
		return 0, fmt.Errorf("marshal kvps: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events SET tombstoned = true WHERE context_id = $1 AND id = $2
	`, contextID, ev.ID)
	if err != nil {
		return 0, fmt.Errorf("tombstone prior event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (context_id, event_no, id, type, heading, content, kvps, temp, tombstoned, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
	`, contextID, logVersion, ev.ID, string(ev.Type), ev.Heading, ev.Content, kvpsJSON, ev.Temp, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return logVersion, nil
}

// Read returns the current snapshot for contextID. Unlike MemoryBus, the
// Postgres-backed implementation does not block in-process; callers that
// need long-poll semantics over this backend should poll it on an
// interval (the HTTP-facing Context Manager owns the blocking wait).
func (b *CockroachBus) Read(ctx context.Context, contextID string, fromVersion uint64, logGUID string, deadline time.Duration) (Snapshot, error) {
	currentGUID, currentVersion, err := b.ensureContext(ctx, contextID)
	if err != nil {
		return Snapshot{}, err
	}

	from := fromVersion
	if logGUID != "" && logGUID != currentGUID {
		from = 0
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT event_no, id, type, heading, content, kvps, temp, tombstoned, timestamp
		FROM events WHERE context_id = $1 AND event_no > $2
		ORDER BY event_no ASC
	`, contextID, from)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var kvpsJSON []byte
		var tombstoned bool
		var typ string
		if err := rows.Scan(&e.EventNo, &e.ID, &typ, &e.Heading, &e.Content, &kvpsJSON, &e.Temp, &tombstoned, &e.Timestamp); err != nil {
			return Snapshot{}, fmt.Errorf("scan event: %w", err)
		}
		if tombstoned {
			continue
		}
		e.ContextID = contextID
		e.Type = EventType(typ)
		if len(kvpsJSON) > 0 {
			if err := json.Unmarshal(kvpsJSON, &e.KVPs); err != nil {
				return Snapshot{}, fmt.Errorf("unmarshal kvps: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	return Snapshot{LogGUID: currentGUID, LogVersion: currentVersion, Events: events}, nil
}

// Reset rotates log_guid, zeroes log_version, and empties the log.
func (b *CockroachBus) Reset(ctx context.Context, contextID string) (string, error) {
	newGUID := newEventID()
	_, err := b.db.ExecContext(ctx, `
		UPDATE contexts SET log_guid = $2, log_version = 0 WHERE context_id = $1
	`, contextID, newGUID)
	if err != nil {
		return "", fmt.Errorf("reset context: %w", err)
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM events WHERE context_id = $1`, contextID); err != nil {
		return "", fmt.Errorf("clear events: %w", err)
	}
	return newGUID, nil
}
