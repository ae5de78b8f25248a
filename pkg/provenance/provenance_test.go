package provenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/step"
)

func TestWriteAndLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	spec, err := specification.Parse([]byte(`
name: demo
study:
  - name: a
    run:
      cmd: echo hi
`))
	require.NoError(t, err)

	require.NoError(t, Write(root, spec, []string{"_source", "a"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))

	doc, err := Load(ExpandedPath(root, "demo"))
	require.NoError(t, err)
	assert.Equal(t, "demo", doc.Name)
	assert.Equal(t, []string{"_source", "a"}, doc.Nodes)
	assert.Equal(t, "2026-01-02T03:04:05Z", doc.GeneratedAt)
	require.NotNil(t, doc.Spec)
	assert.Equal(t, "demo", doc.Spec.Name)
}

func TestPatchAndReadStepStatus(t *testing.T) {
	root := t.TempDir()
	rec := step.NewRecord("run_sim/X1.v1.X2.v2", filepath.Join(root, "run_sim", "X1.v1.X2.v2"), "echo hi", "")
	rec.MarkSubmitted()
	rec.MarkRunning()
	rec.AddJobID("123")
	rec.MarkEnd(step.Finished)

	require.NoError(t, PatchStepStatus(root, rec))

	got, ok, err := ReadStepStatus(root, rec.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FINISHED", got.Status)
	assert.Equal(t, []string{"123"}, got.JobIDs)

	_, ok, err = ReadStepStatus(root, "does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadAllStatuses(t *testing.T) {
	root := t.TempDir()
	a := step.NewRecord("a", filepath.Join(root, "a"), "echo a", "")
	a.MarkEnd(step.Finished)
	b := step.NewRecord("b", filepath.Join(root, "b"), "echo b", "")
	b.MarkEnd(step.Failed)

	require.NoError(t, PatchStepStatus(root, a))
	require.NoError(t, PatchStepStatus(root, b))

	all, err := ReadAllStatuses(root)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "FINISHED", all["a"].Status)
	assert.Equal(t, "FAILED", all["b"].Status)
}
