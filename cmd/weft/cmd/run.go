package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/dag"
	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/expander"
	"github.com/weftrun/weft/pkg/logger"
	"github.com/weftrun/weft/pkg/provenance"
	"github.com/weftrun/weft/pkg/specification"
	"github.com/weftrun/weft/pkg/step"
	"github.com/weftrun/weft/pkg/taskserver"
)

type runOptions struct {
	Local       bool
	Dry         bool
	Vars        []string
	SamplesFile string
	TaskServer  string
}

var runOpts = &runOptions{}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runOpts.Local, "local", false, "run every step as a synchronous child process instead of dispatching to a task server")
	runCmd.Flags().BoolVar(&runOpts.Dry, "dry", false, "write step scripts without submitting them")
	runCmd.Flags().StringArrayVar(&runOpts.Vars, "vars", nil, "override a specification variable, KEY=VALUE (repeatable)")
	runCmd.Flags().StringVar(&runOpts.SamplesFile, "samplesfile", "", "path to a sample table for per-sample step dispatch (outside the core's scope; recorded but not expanded here)")
	runCmd.Flags().StringVar(&runOpts.TaskServer, "task-server", "", `task server address (redis host:port, or "local"); overrides merlin.resources.task_server`)
}

var runCmd = &cobra.Command{
	Use:   "run SPEC",
	Short: "Expand and run a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()
		defer logger.SyncGlobal()

		vars, err := specification.ParseVars(runOpts.Vars)
		if err != nil {
			return err
		}

		spec, err := loadSpec(args[0], vars)
		if err != nil {
			return err
		}

		if runOpts.SamplesFile != "" {
			log.Warnf("--samplesfile %s: per-sample dispatch happens outside the core; this run will not expand samples", runOpts.SamplesFile)
		}

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		root := workspaceRoot(cwd, spec.Name, time.Now())

		log.Infof("expanding study %q into %s", spec.Name, root)
		g, err := expander.Expand(spec, root)
		if err != nil {
			return err
		}

		if err := provenance.Write(root, spec, g.Nodes(), time.Now()); err != nil {
			return err
		}

		a := buildAdapter(spec, "", runOpts.Local)
		exec := buildExecutor(a, spec, runOpts.Dry)

		var ts taskserver.TaskServer
		if runOpts.Local {
			ts = taskserver.NewLocal(0)
		} else {
			ts, err = buildTaskServer(spec, runOpts.TaskServer)
			if err != nil {
				return err
			}
		}

		result, err := ts.Run(context.Background(), g, exec)
		if err != nil {
			return err
		}

		patchAllStatuses(root, g)

		log.Infof("run complete: %d finished, %d failed, %d skipped",
			len(result.Finished), len(result.Failed), len(result.Skipped))

		if len(result.Failed) > 0 {
			return errkind.New(errkind.SubmissionFailed, fmt.Sprintf("%d step(s) failed: %v", len(result.Failed), result.Failed))
		}
		return nil
	},
}

// patchAllStatuses writes every concrete node's current status into the
// run's provenance status blob, so `weft status`/`weft monitor` can read it
// back without re-walking the workspace tree.
func patchAllStatuses(root string, g *dag.Graph) {
	for _, name := range g.Nodes() {
		if name == "_source" {
			continue
		}
		rec, ok := g.Node(name).Value.(*step.Record)
		if !ok {
			continue
		}
		_ = provenance.PatchStepStatus(root, rec)
	}
}
