package scheduler

import "sync"

// pool tracks one typed agent pool's concurrency slot and rolling success
// rate for load-aware throttling (spec.md §4.7).
type pool struct {
	name PoolConfig
	sem  chan struct{}

	mu      sync.Mutex
	history []bool // ring buffer of recent outcomes, true = success
	window  int
	floor   float64
}

func newPool(cfg PoolConfig, window int, floor float64) *pool {
	cap := cfg.Cap
	if cap <= 0 {
		cap = 1
	}
	return &pool{
		name:   cfg,
		sem:    make(chan struct{}, cap),
		window: window,
		floor:  floor,
	}
}

// tryAcquire claims an agent slot without blocking, reporting whether the
// pool had capacity (spec.md §4.7 step 5: "acquire an idle agent ... if
// none idle, spawn one up to a per-pool cap").
func (p *pool) tryAcquire() bool {
	if p.throttled() {
		// Load-aware dispatch: a degraded pool admits one task at a time
		// regardless of its configured cap.
		select {
		case p.sem <- struct{}{}:
			return true
		default:
			return false
		}
	}
	select {
	case p.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (p *pool) release() {
	<-p.sem
}

// recordOutcome feeds a completed task's success/failure into the pool's
// rolling window.
func (p *pool) recordOutcome(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, success)
	if len(p.history) > p.window {
		p.history = p.history[len(p.history)-p.window:]
	}
}

// throttled reports whether the pool's rolling success rate has dropped
// below the configured floor over the last SuccessWindow tasks (spec.md
// §4.7 "Load-aware dispatch").
func (p *pool) throttled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.history) < p.window {
		return false
	}
	successes := 0
	for _, ok := range p.history {
		if ok {
			successes++
		}
	}
	rate := float64(successes) / float64(len(p.history))
	return rate < p.floor
}
