// Package taskserver is the abstract distributed-backend façade: enqueue a
// study's steps, launch workers bound to declared queues, and query/purge/
// stop the backend. The local driver walks the concrete DAG in-process with
// a worker pool (bounded when its Concurrency is above zero); the redis driver dispatches steps as JSON task
// payloads onto per-queue Redis lists and gates dependents on a results hash.
package taskserver

import (
	"context"
	"time"

	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/executor"
)

// RunResult summarizes one Run call: every node's terminal status plus the
// names that never reached FINISHED because an ancestor failed.
type RunResult struct {
	Finished []string
	Failed   []string
	Skipped  []string
}

// QueueStatus is one row of `weft query-status`: a queue's backlog depth and
// how many workers are currently draining it.
type QueueStatus struct {
	Queue   string
	Queued  int64
	Workers int64
}

// WorkerStatus is one row of `weft query-workers`.
type WorkerStatus struct {
	Name          string
	Queues        []string
	LastHeartbeat time.Time
}

// TaskServer is the contract both the local and redis drivers satisfy. Run
// executes a concrete DAG to completion; the remaining methods only make
// sense for a driver with a real out-of-process queue (the local driver
// returns an error from LaunchWorkers, QueryStatus, PurgeTasks and
// StopWorkers, and an empty list from QueryWorkers).
type TaskServer interface {
	// Run drives every node of g to a terminal step.Status using exec,
	// honoring g's edges, and returns once every node is resolved or ctx is
	// cancelled.
	Run(ctx context.Context, g *dag.Graph, exec *executor.StepExecutor) (*RunResult, error)

	// LaunchWorkers runs a worker loop bound to queues until ctx is
	// cancelled: it blocks, pulling and executing tasks.
	LaunchWorkers(ctx context.Context, workerName string, queues []string, exec *executor.StepExecutor) error

	// QueryStatus reports backlog depth and worker count per queue.
	QueryStatus(ctx context.Context, queues []string) ([]QueueStatus, error)

	// PurgeTasks discards every pending task on queues and returns the
	// number of tasks discarded.
	PurgeTasks(ctx context.Context, queues []string) (int64, error)

	// StopWorkers asks every worker currently draining queues to exit after
	// its current task.
	StopWorkers(ctx context.Context, queues []string) error

	// QueryWorkers lists every worker that has sent a heartbeat recently.
	QueryWorkers(ctx context.Context) ([]WorkerStatus, error)
}
