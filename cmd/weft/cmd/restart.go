package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/expander"
	"github.com/weftrun/weft/pkg/logger"
	"github.com/weftrun/weft/pkg/provenance"
	"github.com/weftrun/weft/pkg/step"
	"github.com/weftrun/weft/pkg/taskserver"
)

type restartOptions struct {
	Local      bool
	TaskServer string
}

var restartOpts = &restartOptions{}

func init() {
	rootCmd.AddCommand(restartCmd)
	restartCmd.Flags().BoolVar(&restartOpts.Local, "local", false, "run every resumed step as a synchronous child process instead of dispatching to a task server")
	restartCmd.Flags().StringVar(&restartOpts.TaskServer, "task-server", "", "task server address; overrides merlin.resources.task_server")
}

var restartCmd = &cobra.Command{
	Use:   "restart DIR",
	Short: "Resume a previous run's not-yet-finished steps from its provenance spec",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()
		defer logger.SyncGlobal()

		runDir := args[0]
		docPath, err := findProvenanceDoc(runDir)
		if err != nil {
			return err
		}
		doc, err := provenance.Load(docPath)
		if err != nil {
			return err
		}

		log.Infof("re-expanding study %q for restart from %s", doc.Spec.Name, runDir)
		g, err := expander.Expand(doc.Spec, runDir)
		if err != nil {
			return err
		}

		statuses, err := provenance.ReadAllStatuses(runDir)
		if err != nil {
			return err
		}

		skipped := 0
		for _, name := range g.Nodes() {
			if name == expander.SourceName {
				continue
			}
			if statuses[name].Status == string(step.Finished) {
				g.RemoveNode(name)
				skipped++
			}
		}
		log.Infof("skipping %d already-finished step(s), resuming the rest", skipped)

		a := buildAdapter(doc.Spec, "", restartOpts.Local)
		exec := buildExecutor(a, doc.Spec, false)

		var ts taskserver.TaskServer
		if restartOpts.Local {
			ts = taskserver.NewLocal(0)
		} else {
			ts, err = buildTaskServer(doc.Spec, restartOpts.TaskServer)
			if err != nil {
				return err
			}
		}

		result, err := ts.Run(context.Background(), g, exec)
		if err != nil {
			return err
		}
		patchAllStatuses(runDir, g)

		log.Infof("restart complete: %d finished, %d failed, %d skipped",
			len(result.Finished), len(result.Failed), len(result.Skipped))
		if len(result.Failed) > 0 {
			return errkind.New(errkind.SubmissionFailed, fmt.Sprintf("%d step(s) failed: %v", len(result.Failed), result.Failed))
		}
		return nil
	},
}

// findProvenanceDoc locates the single *.expanded.yaml file written by
// `weft run` under runDir/merlin_info/.
func findProvenanceDoc(runDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(runDir, "merlin_info", "*.expanded.yaml"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errkind.New(errkind.SpecInvalid, fmt.Sprintf("no provenance spec found under %s/merlin_info", runDir))
	}
	return matches[0], nil
}
