package taskserver

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/executor"
	"github.com/weftrun/weft/pkg/logger"
	"github.com/weftrun/weft/pkg/step"
)

// Local walks a concrete DAG topologically in-process, running every tier of
// mutually-ready steps concurrently up to Concurrency, and never starting a
// step whose dependency failed.
type Local struct {
	// Concurrency bounds how many steps run at once. Zero means unbounded
	// (every ready tier runs fully in parallel).
	Concurrency int
}

// NewLocal returns a Local driver bounding concurrent step execution to n
// (0 for unbounded).
func NewLocal(n int) *Local {
	return &Local{Concurrency: n}
}

// Run walks g by readiness: a node becomes runnable once every predecessor
// has resolved. Siblings run concurrently via errgroup; a failed node marks
// every descendant SKIPPED rather than running it.
func (l *Local) Run(ctx context.Context, g *dag.Graph, exec *executor.StepExecutor) (*RunResult, error) {
	inDegree := make(map[string]int)
	for _, name := range g.Nodes() {
		inDegree[name] = len(g.InEdges(name))
	}

	var mu sync.Mutex
	done := make(map[string]bool)
	failed := make(map[string]bool)
	result := &RunResult{}

	var ready []string
	for _, name := range g.Nodes() {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	sem := l.Concurrency
	for len(ready) > 0 {
		tier := ready
		ready = nil

		eg, egCtx := errgroup.WithContext(ctx)
		if sem > 0 {
			eg.SetLimit(sem)
		}

		for _, name := range tier {
			name := name
			eg.Go(func() error {
				return l.runOne(egCtx, g, exec, name, &mu, done, failed, result)
			})
		}
		// runOne never returns an error (failures are recorded, not
		// propagated), so Wait returns nil here.
		if err := eg.Wait(); err != nil {
			return result, err
		}

		mu.Lock()
		for _, name := range tier {
			for _, child := range g.OutEdges(name) {
				if done[child] || failed[child] {
					continue
				}
				inDegree[child]--
				if inDegree[child] == 0 {
					ready = append(ready, child)
				}
			}
		}
		mu.Unlock()
	}

	return result, nil
}

func (l *Local) runOne(
	ctx context.Context,
	g *dag.Graph,
	exec *executor.StepExecutor,
	name string,
	mu *sync.Mutex,
	done, failed map[string]bool,
	result *RunResult,
) error {
	if name == "_source" {
		mu.Lock()
		done[name] = true
		mu.Unlock()
		return nil
	}

	mu.Lock()
	ancestorFailed := false
	for _, dep := range g.InEdges(name) {
		if failed[dep] {
			ancestorFailed = true
			break
		}
	}
	mu.Unlock()

	if ancestorFailed {
		mu.Lock()
		failed[name] = true
		result.Skipped = append(result.Skipped, name)
		mu.Unlock()
		return nil
	}

	rec := g.Node(name).Value.(*step.Record)
	log := logger.Get().With("step", name)

	err := exec.Run(ctx, rec)

	mu.Lock()
	defer mu.Unlock()
	done[name] = true
	if err != nil || rec.Status == step.Failed {
		failed[name] = true
		result.Failed = append(result.Failed, name)
		log.Errorf("step failed: %v", err)
		return nil
	}
	result.Finished = append(result.Finished, name)
	return nil
}

// LaunchWorkers, QueryStatus, PurgeTasks and StopWorkers only make sense for
// a driver with an out-of-process queue; the local driver has none, so each
// of them fails fast with a clear error rather than silently doing nothing.
// QueryWorkers returns an empty list.
func (l *Local) LaunchWorkers(ctx context.Context, workerName string, queues []string, exec *executor.StepExecutor) error {
	return errkind.New(errkind.SpecInvalid, "local task server has no queues to launch workers against")
}

func (l *Local) QueryStatus(ctx context.Context, queues []string) ([]QueueStatus, error) {
	return nil, errkind.New(errkind.SpecInvalid, "local task server has no queue backlog to query")
}

func (l *Local) PurgeTasks(ctx context.Context, queues []string) (int64, error) {
	return 0, errkind.New(errkind.SpecInvalid, "local task server has no queued tasks to purge")
}

func (l *Local) StopWorkers(ctx context.Context, queues []string) error {
	return errkind.New(errkind.SpecInvalid, "local task server has no workers to stop")
}

func (l *Local) QueryWorkers(ctx context.Context) ([]WorkerStatus, error) {
	return nil, nil
}

var _ TaskServer = (*Local)(nil)
