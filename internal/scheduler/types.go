// Package scheduler implements the Supervisor Scheduler described in
// spec.md §4.7: it selects pending tasks from the Task Store, assigns them
// to typed agent pools under a global concurrency cap, and launches the
// Agent Runtime turn loop for each dispatch.
package scheduler

import "time"

// PoolName identifies one of the typed agent pools spec.md §4.7 names.
type PoolName string

const (
	PoolCoding  PoolName = "coding"
	PoolUtility PoolName = "utility"
	PoolBrowser PoolName = "browser"
	PoolGeneral PoolName = "general"
)

// poolForCategory derives a task's required pool from its category
// (spec.md §4.7 step 3: "coding->coding pool, etc.; default->general").
func poolForCategory(category string) PoolName {
	switch PoolName(category) {
	case PoolCoding, PoolUtility, PoolBrowser:
		return PoolName(category)
	default:
		return PoolGeneral
	}
}

// PoolConfig bounds one pool's concurrent agents.
type PoolConfig struct {
	Name PoolName
	Cap  int
}

// Config is the Scheduler's tunable policy, matching spec.md §4.7's named
// parameters.
type Config struct {
	Pools []PoolConfig

	// GlobalParallelism caps total concurrent in-flight turns across every
	// pool (spec.md §4.7 "default 3, configurable").
	GlobalParallelism int

	// AgingInterval is how long a pending task waits before its effective
	// priority rank improves by one (spec.md §4.7 "Fairness").
	AgingInterval time.Duration

	// DispatchTick is the scheduling loop's polling granularity. spec.md
	// describes the dispatch loop as waiting on semaphore-capacity and
	// queue-non-empty conditions; this module polls the Task Store at this
	// interval rather than holding a DB-level condition variable open.
	DispatchTick time.Duration

	// SuccessFloor is the rolling success-rate threshold below which a
	// pool is throttled to one in-flight task at a time (spec.md §4.7
	// "Load-aware dispatch", default 0.5).
	SuccessFloor float64

	// SuccessWindow is how many recent outcomes feed the rolling success
	// rate per pool.
	SuccessWindow int
}

// DefaultConfig returns spec.md §4.7's stated defaults.
func DefaultConfig() Config {
	return Config{
		Pools: []PoolConfig{
			{Name: PoolCoding, Cap: 2},
			{Name: PoolUtility, Cap: 2},
			{Name: PoolBrowser, Cap: 1},
			{Name: PoolGeneral, Cap: 2},
		},
		GlobalParallelism: 3,
		AgingInterval:     2 * time.Minute,
		DispatchTick:      200 * time.Millisecond,
		SuccessFloor:      0.5,
		SuccessWindow:     20,
	}
}
