package scheduler

import (
	"context"

	"github.com/GaryOcean428/gary-zero-sub001/internal/quality"
	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// TurnRunner is the Scheduler's seam into the Agent Runtime (C6): "launch
// the Agent Runtime turn loop as an independent concurrent activity"
// (spec.md §4.7 step 6). The Scheduler depends only on this narrow
// interface so it never imports the runtime package directly.
type TurnRunner interface {
	RunTurn(ctx context.Context, task *models.Task, agentID string) (TurnResult, error)
}

// TurnResult is what a completed turn hands back to the Scheduler for
// persistence and quality scoring.
type TurnResult struct {
	Output map[string]any

	// QualityInput, when non-nil, is scored by the Quality Controller
	// (C9) and attached to the task as a TaskUpdate of kind=quality
	// (spec.md §4.9 "every task completion is scored").
	QualityInput *quality.Input
}

// TurnError classifies how a turn failed, matching spec.md §4.7's
// "Failure handling" cases so the Scheduler can choose retry vs. fail.
type TurnError struct {
	Reason    string // e.g. "timeout", "sandbox_down", "crash"
	Retryable bool
	Err       error
}

func (e *TurnError) Error() string {
	return "scheduler: turn failed (" + e.Reason + "): " + e.Err.Error()
}

func (e *TurnError) Unwrap() error { return e.Err }
