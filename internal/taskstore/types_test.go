package taskstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskPriority_Rank(t *testing.T) {
	require.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	require.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	require.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
}

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusScheduled, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestTaskStatus_CanTransition(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusScheduled))
	require.True(t, StatusPending.CanTransition(StatusCancelled))
	require.False(t, StatusPending.CanTransition(StatusRunning))

	require.True(t, StatusScheduled.CanTransition(StatusRunning))
	require.True(t, StatusScheduled.CanTransition(StatusCancelled))
	require.False(t, StatusScheduled.CanTransition(StatusPending))

	require.True(t, StatusRunning.CanTransition(StatusSucceeded))
	require.True(t, StatusRunning.CanTransition(StatusFailed))
	require.True(t, StatusRunning.CanTransition(StatusCancelled))

	for _, terminal := range []TaskStatus{StatusSucceeded, StatusFailed, StatusCancelled} {
		require.False(t, terminal.CanTransition(StatusRunning), "terminal status %s must be absorbing", terminal)
	}
}

func TestTask_Struct(t *testing.T) {
	now := time.Now()
	started := now.Add(1 * time.Minute)

	task := Task{
		TaskID:          "task-123",
		ParentID:        "task-100",
		ContextID:       "ctx-1",
		Title:           "Summarize the report",
		Description:     "Produce a one-paragraph summary",
		Category:        "coding",
		Priority:        PriorityHigh,
		Status:          StatusRunning,
		AssignedAgentID: "agent-456",
		CreatedAt:       now,
		StartedAt:       &started,
	}

	require.Equal(t, "task-123", task.TaskID)
	require.Equal(t, PriorityHigh, task.Priority)
	require.Equal(t, StatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)
}

func TestIllegalTransitionError_Error(t *testing.T) {
	err := &IllegalTransitionError{TaskID: "t1", From: StatusPending, To: StatusRunning}
	require.Contains(t, err.Error(), "pending -> running")
	require.Contains(t, err.Error(), "t1")
}

func TestCycleError_Error(t *testing.T) {
	err := &CycleError{TaskID: "t1", ParentID: "t2"}
	require.Contains(t, err.Error(), "t1")
	require.Contains(t, err.Error(), "t2")
}
