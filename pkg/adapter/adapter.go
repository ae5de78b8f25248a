// Package adapter writes a shell script per step and submits it, yielding a
// submission record. Two implementations share one contract: a local
// adapter that runs the script as a synchronous child process, and a batch
// adapter that renders a scheduler prologue and hands off to a pluggable
// external submit command.
package adapter

import "context"

// SubmissionCode is the outcome of a Submit call.
type SubmissionCode int

const (
	OK SubmissionCode = iota
	ERROR
	// TIMEOUT marks a submission the backend killed for exceeding its
	// walltime; the executor's restart policy decides what happens next.
	TIMEOUT
)

// SubmissionRecord is the result of submitting a script for execution.
type SubmissionRecord struct {
	Code    SubmissionCode
	Retcode int
	JobID   string
	Stderr  string
}

// BatchConfig carries the run.batch settings a batch adapter needs to
// render a scheduler prologue: walltime, queue, resource requests, and
// (optionally) the external command used to actually submit the rendered
// script to a real scheduler.
type BatchConfig struct {
	Scheduler string // e.g. "slurm", "lsf" — used only to pick a prologue template
	Queue     string
	Walltime  string
	Resources map[string]string
	SubmitCmd string // template rendering the external submit command, e.g. "sbatch {{.ScriptPath}}"
}

// Adapter is the contract both the local and batch implementations satisfy.
type Adapter interface {
	// WriteScript writes <name>.sh (and <name>.restart.sh if restartCmd is
	// non-empty) under workspace. needsScheduling is true for adapters that
	// hand off to an external scheduler rather than running the script
	// in-process.
	WriteScript(workspace, name, shell, cmd, restartCmd string) (needsScheduling bool, scriptPath, restartPath string, err error)

	// Submit runs or hands off scriptPath (the current attempt: original or
	// restart) from cwd with the given environment.
	Submit(ctx context.Context, name, scriptPath, cwd string, env map[string]string) (*SubmissionRecord, error)
}
