package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryBus_AppendAssignsMonotonicVersions(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	n1, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeUser, Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), n1)

	n2, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeAssistant, Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), n2)
}

func TestMemoryBus_TempEventsCoalesceByID(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	_, err := bus.Append(ctx, "ctx-1", NewEvent{ID: "turn-1", Type: TypeThought, Content: "thinking", Temp: true})
	require.NoError(t, err)
	_, err = bus.Append(ctx, "ctx-1", NewEvent{ID: "turn-1", Type: TypeAssistant, Content: "final answer", Temp: false})
	require.NoError(t, err)

	snap, err := bus.Read(ctx, "ctx-1", 0, "", time.Second)
	require.NoError(t, err)
	require.Len(t, snap.Events, 1, "the temp event must be tombstoned once superseded")
	require.Equal(t, "final answer", snap.Events[0].Content)
}

func TestMemoryBus_ReadBlocksUntilAppendOrDeadline(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	start := time.Now()
	done := make(chan Snapshot, 1)
	go func() {
		snap, err := bus.Read(ctx, "ctx-1", 0, "", 2*time.Second)
		require.NoError(t, err)
		done <- snap
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeUser, Content: "hello"})
	require.NoError(t, err)

	snap := <-done
	require.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, snap.Events, 1)
}

func TestMemoryBus_ReadReturnsImmediatelyOnDeadline(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	start := time.Now()
	snap, err := bus.Read(ctx, "ctx-unknown", 0, "", 30*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, snap.Events)
	require.Less(t, time.Since(start), time.Second)
}

func TestMemoryBus_ResetRotatesLogGUIDAndZeroesVersion(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	_, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeUser, Content: "hello"})
	require.NoError(t, err)

	before, err := bus.Read(ctx, "ctx-1", 0, "", time.Second)
	require.NoError(t, err)

	newGUID, err := bus.Reset(ctx, "ctx-1")
	require.NoError(t, err)
	require.NotEqual(t, before.LogGUID, newGUID)

	after, err := bus.Read(ctx, "ctx-1", 0, newGUID, time.Second)
	require.NoError(t, err)
	require.Equal(t, uint64(0), after.LogVersion)
	require.Empty(t, after.Events)
}

func TestMemoryBus_MismatchedLogGUIDForcesFullReplay(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	_, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeUser, Content: "one"})
	require.NoError(t, err)
	_, err = bus.Append(ctx, "ctx-1", NewEvent{Type: TypeAssistant, Content: "two"})
	require.NoError(t, err)

	snap, err := bus.Read(ctx, "ctx-1", 1, "stale-guid", time.Second)
	require.NoError(t, err)
	require.Len(t, snap.Events, 2, "mismatched log_guid must replay from version 0")
}

func TestMemoryBus_PausedContextStillAppends(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	// Pause is a Context Manager / Scheduler concern, not enforced by the
	// log store itself; appends always succeed regardless of pause state.
	_, err := bus.Append(ctx, "ctx-1", NewEvent{Type: TypeUser, Content: "hello"})
	require.NoError(t, err)

	snap, err := bus.Read(ctx, "ctx-1", 0, "", time.Second)
	require.NoError(t, err)
	require.Len(t, snap.Events, 1)
}
