package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/step"
)

// mockAdapter lets tests script a fixed sequence of Submit outcomes and
// records every invocation for assertions.
type mockAdapter struct {
	outcomes []*adapter.SubmissionRecord
	calls    int
}

func (m *mockAdapter) WriteScript(workspace, name, shell, cmd, restartCmd string) (bool, string, string, error) {
	restartPath := ""
	if restartCmd != "" {
		restartPath = filepath.Join(workspace, name+".restart.sh")
	}
	return false, filepath.Join(workspace, name+".sh"), restartPath, nil
}

func (m *mockAdapter) Submit(ctx context.Context, name, scriptPath, cwd string, env map[string]string) (*adapter.SubmissionRecord, error) {
	out := m.outcomes[m.calls]
	m.calls++
	return out, nil
}

func TestStepExecutorSuccess(t *testing.T) {
	dir := t.TempDir()
	rec := step.NewRecord("a", filepath.Join(dir, "a"), "echo hi", "")

	ma := &mockAdapter{outcomes: []*adapter.SubmissionRecord{
		{Code: adapter.OK, JobID: "1"},
	}}
	ex := New(Config{Adapter: ma})

	err := ex.Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, step.Finished, rec.Status)
	assert.Equal(t, []string{"1"}, rec.JobIDs)
	assert.Equal(t, 1, ma.calls)

	info, statErr := os.Stat(rec.Workspace)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestStepExecutorSubmissionFailed(t *testing.T) {
	dir := t.TempDir()
	rec := step.NewRecord("a", filepath.Join(dir, "a"), "exit 1", "")

	ma := &mockAdapter{outcomes: []*adapter.SubmissionRecord{
		{Code: adapter.ERROR, Retcode: 1, Stderr: "boom"},
	}}
	ex := New(Config{Adapter: ma})

	err := ex.Run(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.SubmissionFailed))
	assert.Equal(t, step.Failed, rec.Status)
}

// S6 — restart budget: limit=2, backend times out three times in a row.
// Expect two restart attempts then FAILED with RestartExhausted, and
// exactly three submission attempts total.
func TestStepExecutorRestartExhausted(t *testing.T) {
	dir := t.TempDir()
	rec := step.NewRecord("a", filepath.Join(dir, "a"), "sleep 100", "")
	rec.RestartLimit = 2

	ma := &mockAdapter{outcomes: []*adapter.SubmissionRecord{
		{Code: adapter.TIMEOUT, JobID: "1"},
		{Code: adapter.TIMEOUT, JobID: "2"},
		{Code: adapter.TIMEOUT, JobID: "3"},
	}}
	ex := New(Config{Adapter: ma})

	err := ex.Run(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.RestartExhausted))
	assert.Equal(t, step.Failed, rec.Status)
	assert.Equal(t, 2, rec.NumRestarts)
	assert.Equal(t, 3, ma.calls)
	assert.Equal(t, []string{"1", "2", "3"}, rec.JobIDs)
}

func TestStepExecutorRestartThenSucceeds(t *testing.T) {
	dir := t.TempDir()
	rec := step.NewRecord("a", filepath.Join(dir, "a"), "echo hi", "echo retry")
	rec.RestartLimit = 3

	ma := &mockAdapter{outcomes: []*adapter.SubmissionRecord{
		{Code: adapter.TIMEOUT, JobID: "1"},
		{Code: adapter.OK, JobID: "2"},
	}}
	ex := New(Config{Adapter: ma})

	err := ex.Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, step.Finished, rec.Status)
	assert.Equal(t, 1, rec.NumRestarts)
	assert.Equal(t, 2, ma.calls)
}

func TestStepExecutorDryRun(t *testing.T) {
	dir := t.TempDir()
	rec := step.NewRecord("a", filepath.Join(dir, "a"), "echo hi", "")

	ma := &mockAdapter{}
	ex := New(Config{Adapter: ma, DryRun: true})

	err := ex.Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, step.DryOK, rec.Status)
	assert.Equal(t, 0, ma.calls)
}

var _ adapter.Adapter = (*mockAdapter)(nil)
