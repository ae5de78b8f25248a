package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// prologueTemplates holds one scheduler-prologue template per supported
// scheduler. Each renders the #!-line plus the directives the scheduler
// reads before handing off to the step's own command.
var prologueTemplates = map[string]string{
	"slurm": `#!/bin/bash
#SBATCH --job-name={{.Name}}
{{- if .Walltime}}
#SBATCH --time={{.Walltime}}
{{- end}}
{{- if .Queue}}
#SBATCH --partition={{.Queue}}
{{- end}}
{{- range $k, $v := .Resources}}
#SBATCH --{{$k}}={{$v}}
{{- end}}
`,
	"lsf": `#!/bin/bash
#BSUB -J {{.Name}}
{{- if .Walltime}}
#BSUB -W {{.Walltime}}
{{- end}}
{{- if .Queue}}
#BSUB -q {{.Queue}}
{{- end}}
{{- range $k, $v := .Resources}}
#BSUB -R "{{$k}}={{$v}}"
{{- end}}
`,
}

const defaultScheduler = "slurm"

// prologueData is the value passed to the scheduler-prologue template.
type prologueData struct {
	Name      string
	Walltime  string
	Queue     string
	Resources map[string]string
}

// Batch is the adapter used for steps whose run.batch settings declare a
// scheduler: it renders a scheduler prologue followed by the step's
// command, then hands off to an external submit command (e.g. "sbatch")
// rather than running the script itself.
type Batch struct {
	Config BatchConfig
}

// NewBatch returns a Batch adapter using cfg to render the prologue and
// drive submission.
func NewBatch(cfg BatchConfig) *Batch {
	return &Batch{Config: cfg}
}

// WriteScript renders the scheduler prologue followed by cmd (and, if
// restartCmd is non-empty, a second script for the restart attempt) and
// always reports needsScheduling = true.
func (b *Batch) WriteScript(workspace, name, shell, cmd, restartCmd string) (bool, string, string, error) {
	exe := shell
	if exe == "" {
		exe = "/bin/bash"
	}

	scheduler := b.Config.Scheduler
	if scheduler == "" {
		scheduler = defaultScheduler
	}
	tmplSrc, ok := prologueTemplates[strings.ToLower(scheduler)]
	if !ok {
		return false, "", "", errors.Errorf("adapter: unknown batch scheduler %q", scheduler)
	}

	prologue, err := renderPrologue(tmplSrc, name, b.Config)
	if err != nil {
		return false, "", "", err
	}

	scriptPath := filepath.Join(workspace, name+".sh")
	if err := writeShellScript(scriptPath, exe, prologue+"\n"+cmd); err != nil {
		return false, "", "", err
	}

	var restartPath string
	if restartCmd != "" {
		restartPath = filepath.Join(workspace, name+".restart.sh")
		if err := writeShellScript(restartPath, exe, prologue+"\n"+restartCmd); err != nil {
			return false, "", "", err
		}
	}

	return true, scriptPath, restartPath, nil
}

func renderPrologue(tmplSrc, name string, cfg BatchConfig) (string, error) {
	tmpl, err := template.New("batchPrologue").Funcs(sprig.TxtFuncMap()).Parse(tmplSrc)
	if err != nil {
		return "", errors.Wrap(err, "parsing batch prologue template")
	}

	var buf bytes.Buffer
	data := prologueData{Name: name, Walltime: cfg.Walltime, Queue: cfg.Queue, Resources: cfg.Resources}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "rendering batch prologue")
	}
	return buf.String(), nil
}

// Submit hands scriptPath to the external scheduler submit command
// (Config.SubmitCmd, a sprig-capable text/template rendered with
// {{.ScriptPath}}), captures its stdout as the scheduler job id, and
// returns immediately rather than waiting for the scheduled job to finish.
// An OK record here means the hand-off succeeded; the scheduled job's own
// completion is not tracked afterwards.
func (b *Batch) Submit(ctx context.Context, name, scriptPath, cwd string, env map[string]string) (*SubmissionRecord, error) {
	submitCmd := b.Config.SubmitCmd
	if submitCmd == "" {
		submitCmd = "{{.ScriptPath}}"
	}

	tmpl, err := template.New("batchSubmit").Funcs(sprig.TxtFuncMap()).Parse(submitCmd)
	if err != nil {
		return nil, errors.Wrap(err, "parsing batch submit command template")
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ ScriptPath string }{ScriptPath: scriptPath}); err != nil {
		return nil, errors.Wrap(err, "rendering batch submit command")
	}

	cmd := exec.CommandContext(ctx, "/bin/bash", "-c", buf.String())
	cmd.Dir = cwd
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		retcode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			retcode = exitErr.ExitCode()
		}
		return &SubmissionRecord{Code: ERROR, Retcode: retcode, Stderr: stderr.String()}, nil
	}

	jobID := strings.TrimSpace(stdout.String())
	if jobID == "" {
		jobID = fmt.Sprintf("batch-%s", uuid.NewString())
	}
	return &SubmissionRecord{Code: OK, Retcode: 0, JobID: jobID}, nil
}

var _ Adapter = (*Batch)(nil)
var _ Adapter = (*Local)(nil)
