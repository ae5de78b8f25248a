package taskserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/executor"
	"github.com/weftrun/weft/pkg/logger"
	"github.com/weftrun/weft/pkg/step"
)

const (
	queuePrefix       = "weft:queue:"
	workersKey        = "weft:workers"
	heartbeatInterval = 10 * time.Second
	heartbeatTTL      = 30 * time.Second
	stopSentinelCmd   = "__weft_stop__"
)

// taskPayload is the JSON envelope LPUSH'd onto a queue and BRPOP'd by a
// worker. It carries everything the worker's StepExecutor needs to run the
// step without consulting the original specification.
type taskPayload struct {
	RunID        string `json:"run_id"`
	Name         string `json:"name"`
	Workspace    string `json:"workspace"`
	Cmd          string `json:"cmd"`
	RestartCmd   string `json:"restart_cmd"`
	RestartLimit int    `json:"restart_limit"`
	Stop         bool   `json:"stop,omitempty"`
}

// workerHeartbeat is the JSON value stored per worker in workersKey. Staleness
// is judged from LastSeenUnix rather than a per-field Redis TTL, since the
// hash-field-expiry commands are a recent Redis addition this module does
// not want to depend on.
type workerHeartbeat struct {
	Queues       []string `json:"queues"`
	LastSeenUnix int64    `json:"last_seen_unix"`
}

// Redis is the distributed TaskServer driver: it dispatches ready steps as
// JSON tasks onto per-queue Redis lists (LPUSH/BRPOP) and gates each step's
// dependents on a per-run results hash the executing worker writes to.
type Redis struct {
	Client  *redis.Client
	WorkerID string
}

// NewRedis returns a Redis driver using client. workerID identifies this
// process in QueryWorkers and the heartbeat set; if empty a random one is
// generated.
func NewRedis(client *redis.Client, workerID string) *Redis {
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}
	return &Redis{Client: client, WorkerID: workerID}
}

func queueKey(queue string) string { return queuePrefix + queue }
func resultsKey(runID string) string { return "weft:run:" + runID + ":results" }
func notifyKey(runID string) string  { return "weft:run:" + runID + ":notify" }

// Run pushes every initially-ready node as a task, then blocks on the run's
// notification list as workers report results, pushing newly-ready
// dependents until every node resolves or ctx is cancelled. It does not
// execute steps itself — that's LaunchWorkers' job, run against the same
// Redis instance and run id.
func (r *Redis) Run(ctx context.Context, g *dag.Graph, exec *executor.StepExecutor) (*RunResult, error) {
	runID := uuid.NewString()
	log := logger.Get().With("run_id", runID)

	inDegree := make(map[string]int)
	for _, name := range g.Nodes() {
		inDegree[name] = len(g.InEdges(name))
	}

	result := &RunResult{}
	resolved := make(map[string]bool)
	total := 0
	for _, name := range g.Nodes() {
		if name != "_source" {
			total++
		}
	}

	push := func(name string) error {
		rec := g.Node(name).Value.(*step.Record)
		payload := taskPayload{
			RunID:        runID,
			Name:         rec.Name,
			Workspace:    rec.Workspace,
			Cmd:          rec.Cmd,
			RestartCmd:   rec.RestartCmd,
			RestartLimit: rec.RestartLimit,
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshaling task payload")
		}
		queue := rec.TaskQueue()
		if err := r.Client.LPush(ctx, queueKey(queue), raw).Err(); err != nil {
			return errors.Wrapf(err, "pushing task %q onto queue %q", name, queue)
		}
		log.Infof("dispatched step %q to queue %q", name, queue)
		return nil
	}

	// _source represents no real work: resolve it synchronously and fold its
	// out-edges into the initial ready set rather than waiting on a worker
	// to report back for a task that was never dispatched.
	var seed []string
	for _, name := range g.Nodes() {
		if inDegree[name] == 0 {
			seed = append(seed, name)
		}
	}
	for len(seed) > 0 {
		name := seed[0]
		seed = seed[1:]
		if name == "_source" {
			resolved[name] = true
			for _, child := range g.OutEdges(name) {
				inDegree[child]--
				if inDegree[child] == 0 {
					seed = append(seed, child)
				}
			}
			continue
		}
		if err := push(name); err != nil {
			return result, err
		}
	}

	for len(resolved) < total+1 { // +1 accounts for "_source"
		item, err := r.Client.BLPop(ctx, 5*time.Second, notifyKey(runID)).Result()
		if errors.Is(err, redis.Nil) {
			continue // no report within the poll window, keep waiting
		}
		if err != nil {
			return result, errors.Wrap(err, "waiting on run notifications")
		}

		name := item[1]
		if resolved[name] {
			continue
		}
		resolved[name] = true

		status, err := r.Client.HGet(ctx, resultsKey(runID), name).Result()
		if err != nil {
			return result, errors.Wrapf(err, "reading result for step %q", name)
		}

		if status != string(step.Finished) {
			result.Failed = append(result.Failed, name)
			skipDescendants(g, name, resolved, result)
			continue
		}
		result.Finished = append(result.Finished, name)

		for _, child := range g.OutEdges(name) {
			if resolved[child] {
				continue
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				anyFailedAncestor := false
				for _, dep := range g.InEdges(child) {
					for _, f := range result.Failed {
						if f == dep {
							anyFailedAncestor = true
						}
					}
				}
				if anyFailedAncestor {
					resolved[child] = true
					result.Skipped = append(result.Skipped, child)
					continue
				}
				if err := push(child); err != nil {
					return result, err
				}
			}
		}
	}

	return result, nil
}

func skipDescendants(g *dag.Graph, failedName string, resolved map[string]bool, result *RunResult) {
	for _, desc := range descendants(g, failedName) {
		if !resolved[desc] {
			resolved[desc] = true
			result.Skipped = append(result.Skipped, desc)
		}
	}
}

func descendants(g *dag.Graph, name string) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(n string) {
		for _, child := range g.OutEdges(n) {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
				walk(child)
			}
		}
	}
	walk(name)
	return out
}

// LaunchWorkers blocks, draining queues via BRPOP (which pops from the first
// non-empty queue in the order given), executing each task with exec, writing its terminal status to the run's
// results hash, and waking that run's dispatcher via its notification list.
// A heartbeat is written to workersKey every heartbeatInterval so
// QueryWorkers and QueryStatus can see this process is alive. A task with
// Stop set (the stop sentinel) ends the loop.
func (r *Redis) LaunchWorkers(ctx context.Context, workerName string, queues []string, exec *executor.StepExecutor) error {
	if len(queues) == 0 {
		return errkind.New(errkind.SpecInvalid, "worker has no queues assigned")
	}
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = queueKey(q)
	}

	log := logger.Get().With("worker", workerName, "queues", queues)
	if err := r.heartbeat(ctx, queues); err != nil {
		log.Warnf("initial heartbeat failed: %v", err)
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.heartbeat(ctx, queues); err != nil {
				log.Warnf("heartbeat failed: %v", err)
			}
			continue
		default:
		}

		popped, err := r.Client.BRPop(ctx, heartbeatInterval, keys...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "popping task")
		}

		var task taskPayload
		if err := json.Unmarshal([]byte(popped[1]), &task); err != nil {
			log.Errorf("discarding malformed task: %v", err)
			continue
		}
		if task.Stop {
			log.Infof("received stop sentinel, exiting")
			return nil
		}

		rec := step.NewRecord(task.Name, task.Workspace, task.Cmd, task.RestartCmd)
		rec.RestartLimit = task.RestartLimit

		runErr := exec.Run(ctx, rec)
		if runErr != nil {
			log.Errorf("step %q failed: %v", task.Name, runErr)
		}
		if err := r.Client.HSet(ctx, resultsKey(task.RunID), task.Name, string(rec.Status)).Err(); err != nil {
			log.Errorf("recording result for %q: %v", task.Name, err)
		}
		if err := r.Client.LPush(ctx, notifyKey(task.RunID), task.Name).Err(); err != nil {
			log.Errorf("notifying dispatcher for %q: %v", task.Name, err)
		}
	}
}

func (r *Redis) heartbeat(ctx context.Context, queues []string) error {
	raw, err := json.Marshal(workerHeartbeat{Queues: queues, LastSeenUnix: time.Now().Unix()})
	if err != nil {
		return err
	}
	return r.Client.HSet(ctx, workersKey, r.WorkerID, raw).Err()
}

// QueryStatus reports LLEN per queue and how many heartbeating workers
// declared that queue.
func (r *Redis) QueryStatus(ctx context.Context, queues []string) ([]QueueStatus, error) {
	workers, err := r.QueryWorkers(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]QueueStatus, 0, len(queues))
	for _, q := range queues {
		n, err := r.Client.LLen(ctx, queueKey(q)).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "querying queue %q", q)
		}
		var workerCount int64
		for _, w := range workers {
			for _, wq := range w.Queues {
				if wq == q {
					workerCount++
					break
				}
			}
		}
		out = append(out, QueueStatus{Queue: q, Queued: n, Workers: workerCount})
	}
	return out, nil
}

// PurgeTasks deletes every pending task on queues and returns the total
// count discarded.
func (r *Redis) PurgeTasks(ctx context.Context, queues []string) (int64, error) {
	var total int64
	for _, q := range queues {
		n, err := r.Client.LLen(ctx, queueKey(q)).Result()
		if err != nil {
			return total, errors.Wrapf(err, "counting queue %q", q)
		}
		if err := r.Client.Del(ctx, queueKey(q)).Err(); err != nil {
			return total, errors.Wrapf(err, "purging queue %q", q)
		}
		total += n
	}
	return total, nil
}

// StopWorkers pushes one stop sentinel per currently-heartbeating worker
// bound to queues onto each of those queues, so every draining worker picks
// one up and exits after its current task.
func (r *Redis) StopWorkers(ctx context.Context, queues []string) error {
	workers, err := r.QueryWorkers(ctx)
	if err != nil {
		return err
	}

	sentinel, err := json.Marshal(taskPayload{Stop: true, Cmd: stopSentinelCmd})
	if err != nil {
		return errors.Wrap(err, "marshaling stop sentinel")
	}

	counted := map[string]int{}
	for _, w := range workers {
		for _, wq := range w.Queues {
			for _, q := range queues {
				if wq == q {
					counted[q]++
				}
			}
		}
	}

	for q, n := range counted {
		for i := 0; i < n; i++ {
			if err := r.Client.LPush(ctx, queueKey(q), sentinel).Err(); err != nil {
				return errors.Wrapf(err, "stopping workers on queue %q", q)
			}
		}
	}
	return nil
}

// QueryWorkers lists every worker whose last heartbeat is within
// heartbeatTTL, pruning stale entries it encounters along the way.
func (r *Redis) QueryWorkers(ctx context.Context) ([]WorkerStatus, error) {
	entries, err := r.Client.HGetAll(ctx, workersKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "listing workers")
	}

	cutoff := time.Now().Add(-heartbeatTTL)
	out := make([]WorkerStatus, 0, len(entries))
	for name, raw := range entries {
		var hb workerHeartbeat
		if err := json.Unmarshal([]byte(raw), &hb); err != nil {
			continue
		}
		lastSeen := time.Unix(hb.LastSeenUnix, 0)
		if lastSeen.Before(cutoff) {
			r.Client.HDel(ctx, workersKey, name)
			continue
		}
		out = append(out, WorkerStatus{Name: name, Queues: hb.Queues, LastHeartbeat: lastSeen})
	}
	return out, nil
}

var _ TaskServer = (*Redis)(nil)
