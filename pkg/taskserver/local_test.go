package taskserver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/executor"
	"github.com/weftrun/weft/pkg/step"
)

func buildLinearGraph(t *testing.T, root string) *dag.Graph {
	t.Helper()
	g := dag.New()
	g.AddNode("_source", nil)
	a := step.NewRecord("a", filepath.Join(root, "a"), "echo a", "")
	b := step.NewRecord("b", filepath.Join(root, "b"), "echo b", "")
	g.AddNode("a", a)
	g.AddNode("b", b)
	require.NoError(t, g.AddEdge("_source", "a"))
	require.NoError(t, g.AddEdge("a", "b"))
	return g
}

func TestLocalRunLinearSucceeds(t *testing.T) {
	root := t.TempDir()
	g := buildLinearGraph(t, root)
	exec := executor.New(executor.Config{Adapter: adapter.NewLocal("")})

	l := NewLocal(0)
	result, err := l.Run(context.Background(), g, exec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, result.Finished)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Skipped)
}

func TestLocalRunSkipsDescendantsOfFailure(t *testing.T) {
	root := t.TempDir()
	g := dag.New()
	g.AddNode("_source", nil)
	a := step.NewRecord("a", filepath.Join(root, "a"), "exit 1", "")
	b := step.NewRecord("b", filepath.Join(root, "b"), "echo b", "")
	g.AddNode("a", a)
	g.AddNode("b", b)
	require.NoError(t, g.AddEdge("_source", "a"))
	require.NoError(t, g.AddEdge("a", "b"))

	exec := executor.New(executor.Config{Adapter: adapter.NewLocal("")})
	l := NewLocal(0)
	result, err := l.Run(context.Background(), g, exec)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Failed)
	assert.Equal(t, []string{"b"}, result.Skipped)
	assert.Empty(t, result.Finished)
}

func TestLocalRunFanOutConcurrent(t *testing.T) {
	root := t.TempDir()
	g := dag.New()
	g.AddNode("_source", nil)
	a := step.NewRecord("a", filepath.Join(root, "a"), "echo a", "")
	b := step.NewRecord("b", filepath.Join(root, "b"), "echo b", "")
	c := step.NewRecord("c", filepath.Join(root, "c"), "echo c", "")
	g.AddNode("a", a)
	g.AddNode("b", b)
	g.AddNode("c", c)
	require.NoError(t, g.AddEdge("_source", "a"))
	require.NoError(t, g.AddEdge("_source", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "c"))

	exec := executor.New(executor.Config{Adapter: adapter.NewLocal("")})
	l := NewLocal(2)
	result, err := l.Run(context.Background(), g, exec)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Finished)
	assert.Equal(t, step.Finished, c.Status)
}

func TestLocalRunUnsupportedQueueOperations(t *testing.T) {
	l := NewLocal(0)
	_, err := l.QueryStatus(context.Background(), []string{"default"})
	assert.Error(t, err)
	_, err = l.PurgeTasks(context.Background(), []string{"default"})
	assert.Error(t, err)
	err = l.StopWorkers(context.Background(), []string{"default"})
	assert.Error(t, err)
	err = l.LaunchWorkers(context.Background(), "w1", []string{"default"}, nil)
	assert.Error(t, err)
}
