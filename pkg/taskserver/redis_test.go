package taskserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/executor"
)

func marshalStaleHeartbeat(queues []string, lastSeen time.Time) ([]byte, error) {
	return json.Marshal(workerHeartbeat{Queues: queues, LastSeenUnix: lastSeen.Unix()})
}

func marshalTask(t taskPayload) ([]byte, error) {
	return json.Marshal(t)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisHeartbeatAndQueryWorkers(t *testing.T) {
	client := newTestRedis(t)
	r := NewRedis(client, "worker-1")
	ctx := context.Background()

	require.NoError(t, r.heartbeat(ctx, []string{"default", "gpu"}))

	workers, err := r.QueryWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "worker-1", workers[0].Name)
	assert.ElementsMatch(t, []string{"default", "gpu"}, workers[0].Queues)
}

func TestRedisQueryWorkersPrunesStaleEntries(t *testing.T) {
	client := newTestRedis(t)
	r := NewRedis(client, "worker-1")
	ctx := context.Background()

	raw, err := marshalStaleHeartbeat([]string{"default"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, client.HSet(ctx, workersKey, "worker-1", raw).Err())

	workers, err := r.QueryWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers)

	exists, err := client.HExists(ctx, workersKey, "worker-1").Result()
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisQueryStatusAndPurge(t *testing.T) {
	client := newTestRedis(t)
	r := NewRedis(client, "worker-1")
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, queueKey("default"), "task-1", "task-2").Err())
	require.NoError(t, r.heartbeat(ctx, []string{"default"}))

	statuses, err := r.QueryStatus(ctx, []string{"default"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, int64(2), statuses[0].Queued)
	assert.Equal(t, int64(1), statuses[0].Workers)

	purged, err := r.PurgeTasks(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	statuses, err = r.QueryStatus(ctx, []string{"default"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), statuses[0].Queued)
}

func TestRedisLaunchWorkersExecutesAndStops(t *testing.T) {
	client := newTestRedis(t)
	r := NewRedis(client, "worker-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	exec := executor.New(executor.Config{Adapter: adapter.NewLocal("")})

	payload, err := marshalTask(taskPayload{
		RunID:     "run-1",
		Name:      "a",
		Workspace: filepath.Join(root, "a"),
		Cmd:       "echo hi",
	})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, queueKey("default"), payload).Err())

	stop, err := marshalTask(taskPayload{Stop: true, Cmd: stopSentinelCmd})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, queueKey("default"), stop).Err())

	done := make(chan error, 1)
	go func() {
		done <- r.LaunchWorkers(ctx, "worker-1", []string{"default"}, exec)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("LaunchWorkers did not return after stop sentinel")
	}

	status, err := client.HGet(ctx, resultsKey("run-1"), "a").Result()
	require.NoError(t, err)
	assert.Equal(t, "FINISHED", status)
}

func TestRedisRunDispatchesAcrossWorker(t *testing.T) {
	client := newTestRedis(t)
	root := t.TempDir()
	g := buildLinearGraph(t, root)
	exec := executor.New(executor.Config{Adapter: adapter.NewLocal("")})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	worker := NewRedis(client, "worker-1")
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- worker.LaunchWorkers(workerCtx, "worker-1", []string{"weft"}, exec)
	}()

	dispatcher := NewRedis(client, "dispatcher")
	runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := dispatcher.Run(runCtx, g, exec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, result.Finished)

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(2 * time.Second):
		t.Log("worker goroutine did not exit promptly after cancellation (non-fatal)")
	}
}
