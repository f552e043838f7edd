package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GaryOcean428/gary-zero-sub001/internal/contextmgr"
	"github.com/GaryOcean428/gary-zero-sub001/internal/quality"
	"github.com/GaryOcean428/gary-zero-sub001/internal/taskstore"
	"github.com/GaryOcean428/gary-zero-sub001/pkg/models"
)

// Scheduler implements the Supervisor Scheduler (spec.md §4.7): a
// single-threaded dispatch loop over the Task Store's pending queue,
// multi-task concurrent execution bounded by a global semaphore and
// per-pool semaphores.
type Scheduler struct {
	store   taskstore.Store
	runner  TurnRunner
	quality quality.Controller
	cfg     Config
	logger  *slog.Logger

	pools  map[PoolName]*pool
	global chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler constructs a Scheduler. quality may be nil to skip
// post-completion scoring (e.g. in tests that don't exercise C9).
func NewScheduler(store taskstore.Store, runner TurnRunner, qc quality.Controller, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.GlobalParallelism <= 0 {
		cfg.GlobalParallelism = DefaultConfig().GlobalParallelism
	}
	if cfg.DispatchTick <= 0 {
		cfg.DispatchTick = DefaultConfig().DispatchTick
	}
	if cfg.AgingInterval <= 0 {
		cfg.AgingInterval = DefaultConfig().AgingInterval
	}
	if cfg.SuccessWindow <= 0 {
		cfg.SuccessWindow = DefaultConfig().SuccessWindow
	}
	if cfg.SuccessFloor <= 0 {
		cfg.SuccessFloor = DefaultConfig().SuccessFloor
	}
	if len(cfg.Pools) == 0 {
		cfg.Pools = DefaultConfig().Pools
	}
	if logger == nil {
		logger = slog.Default()
	}

	pools := make(map[PoolName]*pool, len(cfg.Pools))
	for _, p := range cfg.Pools {
		pools[p.Name] = newPool(p, cfg.SuccessWindow, cfg.SuccessFloor)
	}

	return &Scheduler{
		store:   store,
		runner:  runner,
		quality: qc,
		cfg:     cfg,
		logger:  logger.With("component", "scheduler"),
		pools:   pools,
		global:  make(chan struct{}, cfg.GlobalParallelism),
	}
}

// Enqueue implements contextmgr.TaskEnqueuer: post_message (spec.md §4.8)
// originates a task here, at the general pool by default.
func (s *Scheduler) Enqueue(ctx context.Context, seed contextmgr.TaskSeed) (string, error) {
	priority := seed.Priority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}
	return s.store.Create(ctx, taskstore.TaskSpec{
		ContextID: seed.ContextID,
		Title:     seed.Title,
		Category:  seed.Category,
		Priority:  priority,
	})
}

// Start runs the dispatch loop until the returned context is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	ticker := time.NewTicker(s.cfg.DispatchTick)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.drain(ctx)
			}
		}
	}()
}

// Stop cancels the dispatch loop and waits for in-flight turns to finish
// releasing their semaphores (it does not cancel running turns).
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// drain dispatches as many queued tasks as current capacity allows
// (spec.md §4.7 steps 1-2: "wait until both the global semaphore has
// capacity and the queue is non-empty").
func (s *Scheduler) drain(ctx context.Context) {
	for s.drainOnce(ctx) {
	}
}

// drainOnce reserves a global semaphore slot and attempts a single
// dispatch, releasing the slot again if nothing was dispatchable.
func (s *Scheduler) drainOnce(ctx context.Context) bool {
	select {
	case s.global <- struct{}{}:
	default:
		return false
	}
	if !s.dispatchOne(ctx) {
		<-s.global
		return false
	}
	return true
}

// dispatchOne pops the highest-priority dispatchable task and launches its
// turn. It assumes the caller already reserved a global semaphore slot; on
// failure to dispatch, the caller is responsible for releasing it.
func (s *Scheduler) dispatchOne(ctx context.Context) bool {
	candidates, err := s.store.Query(ctx, taskstore.Filter{
		Status: statusPtr(taskstore.StatusPending),
		Limit:  100,
	})
	if err != nil {
		s.logger.Error("query pending tasks", "error", err)
		return false
	}
	if len(candidates) == 0 {
		return false
	}

	now := time.Now()
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := effectiveRank(candidates[i], now, s.cfg.AgingInterval), effectiveRank(candidates[j], now, s.cfg.AgingInterval)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	for _, task := range candidates {
		poolName := poolForCategory(task.Category)
		p := s.pools[poolName]
		if p == nil {
			p = newPool(PoolConfig{Name: poolName, Cap: 1}, s.cfg.SuccessWindow, s.cfg.SuccessFloor)
			s.pools[poolName] = p
		}
		if !p.tryAcquire() {
			// Pool saturated or throttled: defer this candidate, try the
			// next one (spec.md §4.7 step 4).
			continue
		}

		agentID := string(poolName) + "-" + uuid.NewString()[:8]
		s.launch(ctx, task, p, agentID)
		return true
	}
	return false
}

// launch transitions a task scheduled -> running and runs its turn as an
// independent goroutine, releasing both semaphores on completion (spec.md
// §4.7 steps 6-7).
func (s *Scheduler) launch(ctx context.Context, task *models.Task, p *pool, agentID string) {
	if err := s.store.UpdateStatus(ctx, task.TaskID, taskstore.StatusScheduled, ""); err != nil {
		s.logger.Error("mark scheduled", "task_id", task.TaskID, "error", err)
		p.release()
		<-s.global
		return
	}
	if err := s.store.UpdateStatus(ctx, task.TaskID, taskstore.StatusRunning, ""); err != nil {
		s.logger.Error("mark running", "task_id", task.TaskID, "error", err)
		p.release()
		<-s.global
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer p.release()
		defer func() { <-s.global }()
		s.runTurn(ctx, task, agentID, p)
	}()
}

// runTurn drives one turn to completion, with the single-retry-after-
// rebuild behavior spec.md §4.7 specifies for SANDBOX_DOWN.
func (s *Scheduler) runTurn(ctx context.Context, task *models.Task, agentID string, p *pool) {
	result, err := s.runner.RunTurn(ctx, task, agentID)
	if turnErr, ok := err.(*TurnError); ok && turnErr.Reason == "sandbox_down" {
		s.logger.Warn("sandbox down, retrying once", "task_id", task.TaskID)
		result, err = s.runner.RunTurn(ctx, task, agentID)
	}

	if err != nil {
		reason := "crash"
		if turnErr, ok := err.(*TurnError); ok {
			reason = turnErr.Reason
		}
		p.recordOutcome(false)
		if uerr := s.store.AttachError(ctx, task.TaskID, models.TaskError{
			Kind:   "turn_failed",
			Reason: reason,
			Hint:   err.Error(),
		}); uerr != nil {
			s.logger.Error("attach error", "task_id", task.TaskID, "error", uerr)
		}
		if serr := s.store.UpdateStatus(ctx, task.TaskID, taskstore.StatusFailed, reason); serr != nil {
			s.logger.Error("mark failed", "task_id", task.TaskID, "error", serr)
		}
		return
	}

	p.recordOutcome(true)
	if aerr := s.store.AttachResult(ctx, task.TaskID, result.Output); aerr != nil {
		s.logger.Error("attach result", "task_id", task.TaskID, "error", aerr)
	}
	if serr := s.store.UpdateStatus(ctx, task.TaskID, taskstore.StatusSucceeded, ""); serr != nil {
		s.logger.Error("mark succeeded", "task_id", task.TaskID, "error", serr)
	}

	if s.quality != nil && result.QualityInput != nil {
		result.QualityInput.TaskID = task.TaskID
		assessment := s.quality.Assess(*result.QualityInput)
		if uerr := s.store.AppendUpdate(ctx, task.TaskID, taskstore.UpdateKindQuality, assessment.AsTaskUpdatePayload()); uerr != nil {
			s.logger.Error("append quality update", "task_id", task.TaskID, "error", uerr)
		}
	}
}

// effectiveRank applies spec.md §4.7's aging rule: a task's priority rank
// improves by one for every AgingInterval spent pending.
func effectiveRank(task *models.Task, now time.Time, agingInterval time.Duration) int {
	rank := task.Priority.Rank()
	if agingInterval <= 0 {
		return rank
	}
	waited := now.Sub(task.CreatedAt)
	promotions := int(waited / agingInterval)
	rank -= promotions
	if rank < 0 {
		rank = 0
	}
	return rank
}

func statusPtr(s taskstore.TaskStatus) *taskstore.TaskStatus { return &s }
