package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/executor"
	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/taskserver"
)

// workspaceRoot computes the timestamped study directory a run's steps live
// under: <root>/<study>_<timestamp>, matching the on-disk layout every
// other command (status, restart, purge) expects to find.
func workspaceRoot(root, studyName string, at time.Time) string {
	return filepath.Join(root, fmt.Sprintf("%s_%s", studyName, at.UTC().Format("20060102T150405Z")))
}

// loadSpec reads and validates the specification at path, applying any
// --vars overrides onto its env.variables map.
func loadSpec(path string, varsOverrides map[string]interface{}) (*specification.Specification, error) {
	spec, err := specification.Load(path)
	if err != nil {
		return nil, err
	}
	if len(varsOverrides) > 0 {
		if spec.Env.Variables == nil {
			spec.Env.Variables = make(map[string]string, len(varsOverrides))
		}
		for k, v := range varsOverrides {
			spec.Env.Variables[k] = fmt.Sprintf("%v", v)
		}
	}
	return spec, nil
}

// buildAdapter picks the local or batch adapter for a run: --local always
// wins; otherwise any non-empty top-level batch block in the specification
// selects the batch adapter (whose scheduler defaults to slurm when
// batch.scheduler is unset).
func buildAdapter(spec *specification.Specification, shell string, forceLocal bool) adapter.Adapter {
	if forceLocal || len(spec.Batch) == 0 {
		return adapter.NewLocal(shell)
	}
	cfg := adapter.BatchConfig{
		Scheduler: spec.Batch["scheduler"],
		Queue:     spec.Batch["queue"],
		Walltime:  spec.Batch["walltime"],
		SubmitCmd: spec.Batch["submit_cmd"],
		Resources: spec.Batch,
	}
	return adapter.NewBatch(cfg)
}

// buildExecutor wires Config.Env from spec.env.variables.
func buildExecutor(a adapter.Adapter, spec *specification.Specification, dryRun bool) *executor.StepExecutor {
	return executor.New(executor.Config{
		Adapter: a,
		Env:     spec.Env.Variables,
		DryRun:  dryRun,
	})
}

// buildTaskServer resolves the distributed backend for a study: an explicit
// --task-server flag wins over merlin.resources.task_server; "local" or ""
// selects the in-process driver, anything else is treated as a redis
// address.
func buildTaskServer(spec *specification.Specification, override string) (taskserver.TaskServer, error) {
	target := override
	if target == "" && spec != nil {
		target = spec.Merlin.Resources.TaskServer
	}
	if target == "" {
		target = loadedAppConfig.TaskServer
	}
	if target == "" || strings.EqualFold(target, "local") {
		return taskserver.NewLocal(0), nil
	}

	client := redis.NewClient(&redis.Options{Addr: target})
	hostname, _ := os.Hostname()
	return taskserver.NewRedis(client, hostname), nil
}

// latestRunDir finds the most recently dispatched <name>_<timestamp>
// workspace directory under root for the study named name. The timestamp
// format workspaceRoot uses sorts lexically alongside chronologically, so
// the last match in sorted order is also the latest run.
func latestRunDir(root, name string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", root, err)
	}

	prefix := name + "_"
	var matches []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			matches = append(matches, e.Name())
		}
	}
	if len(matches) == 0 {
		return "", errkind.New(errkind.SpecInvalid, fmt.Sprintf("no prior run of study %q found under %s", name, root))
	}
	sort.Strings(matches)
	return filepath.Join(root, matches[len(matches)-1]), nil
}
