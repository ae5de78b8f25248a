// Package executor drives one step.Record through its state machine using
// an adapter.Adapter: create the workspace, write the script, submit it,
// and apply the restart policy on a reported TIMEOUT. The same StepExecutor
// runs identically whether invoked in-process (local mode) or inside a
// remote worker process dispatched by the taskserver package.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/logger"
	"github.com/weftrun/weft/pkg/step"
)

// Config bundles everything a StepExecutor needs to drive one step.Record,
// independent of which study it belongs to.
type Config struct {
	Adapter adapter.Adapter
	Shell   string
	Env     map[string]string
	DryRun  bool
}

// StepExecutor owns submission and restart for one step.Record at a time.
// It does not own the record itself (see package step's ownership rule).
// It holds only its Config, so one StepExecutor can drive many records
// concurrently; the local task server shares one across its goroutines.
type StepExecutor struct {
	cfg Config
}

// New returns a StepExecutor configured with cfg.
func New(cfg Config) *StepExecutor {
	return &StepExecutor{cfg: cfg}
}

// Run creates rec's workspace, writes its script(s), and (unless Config.DryRun)
// submits it, looping through the restart policy on TIMEOUT until the step
// reaches a terminal status or its restart budget is exhausted.
func (e *StepExecutor) Run(ctx context.Context, rec *step.Record) error {
	log := logger.Get().With("step", rec.Name, "workspace", rec.Workspace)

	if err := os.MkdirAll(rec.Workspace, 0o755); err != nil {
		return errors.Wrapf(err, "creating workspace for step %q", rec.Name)
	}

	rec.MarkSubmitted()

	name := scriptName(rec.Name)
	needsScheduling, scriptPath, restartPath, err := e.cfg.Adapter.WriteScript(
		rec.Workspace, name, e.cfg.Shell, rec.Cmd, rec.RestartCmd)
	if err != nil {
		return errors.Wrapf(err, "writing script for step %q", rec.Name)
	}

	if e.cfg.DryRun {
		log.Infof("dry-run: wrote script without submitting")
		rec.MarkDryOK()
		return nil
	}

	return e.submitLoop(ctx, log, rec, name, needsScheduling, scriptPath, restartPath)
}

func (e *StepExecutor) submitLoop(
	ctx context.Context,
	log *logger.Logger,
	rec *step.Record,
	name string,
	needsScheduling bool,
	scriptPath, restartPath string,
) error {
	current := scriptPath

	for {
		if !needsScheduling {
			rec.MarkRunning()
		}

		result, err := e.cfg.Adapter.Submit(ctx, name, current, rec.Workspace, e.cfg.Env)
		if err != nil {
			rec.MarkEnd(step.Failed)
			return errors.Wrapf(err, "submitting step %q", rec.Name)
		}
		if result.JobID != "" {
			rec.AddJobID(result.JobID)
		}

		switch result.Code {
		case adapter.OK:
			rec.MarkEnd(step.Finished)
			log.Successf("step finished")
			return nil

		case adapter.TIMEOUT:
			log.Warnf("step timed out, num_restarts=%d limit=%d", rec.NumRestarts, rec.RestartLimit)
			if !rec.MarkRestart() {
				return errkind.New(errkind.RestartExhausted, fmt.Sprintf(
					"step %q exhausted its restart budget after %d restart(s)", rec.Name, rec.NumRestarts))
			}
			if restartPath != "" {
				current = restartPath
			}
			continue

		default: // adapter.ERROR
			rec.MarkEnd(step.Failed)
			submitErr := errkind.New(errkind.SubmissionFailed, fmt.Sprintf(
				"step %q failed with retcode %d", rec.Name, result.Retcode))
			submitErr = errkind.WithField(submitErr, "retcode", result.Retcode)
			submitErr = errkind.WithField(submitErr, "stderr", result.Stderr)
			log.Errorf("step failed: %v", submitErr)
			return submitErr
		}
	}
}

// scriptName derives the on-disk script basename from a (possibly
// parameterized, slash-containing) step name: only the final path segment
// is used since the workspace directory already encodes the full name.
func scriptName(stepName string) string {
	return filepath.Base(strings.ReplaceAll(stepName, "/", string(filepath.Separator)))
}
