package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/logger"
)

type stopWorkersOptions struct {
	Spec       string
	Queues     []string
	TaskServer string
}

var stopWorkersOpts = &stopWorkersOptions{}

func init() {
	rootCmd.AddCommand(stopWorkersCmd)
	stopWorkersCmd.Flags().StringVar(&stopWorkersOpts.Spec, "spec", "", "derive the queues to stop from this study specification")
	stopWorkersCmd.Flags().StringArrayVar(&stopWorkersOpts.Queues, "queues", nil, "stop workers draining this queue (repeatable); overrides --spec")
	stopWorkersCmd.Flags().StringVar(&stopWorkersOpts.TaskServer, "task-server", "", "task server address (redis host:port)")
}

var stopWorkersCmd = &cobra.Command{
	Use:   "stop-workers",
	Short: "Ask every worker draining the given queues to exit after its current task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()

		queues := stopWorkersOpts.Queues
		target := stopWorkersOpts.TaskServer
		if len(queues) == 0 && stopWorkersOpts.Spec != "" {
			spec, err := loadSpec(stopWorkersOpts.Spec, nil)
			if err != nil {
				return err
			}
			queues = spec.AllTaskQueues()
			if target == "" {
				target = spec.Merlin.Resources.TaskServer
			}
		}
		if len(queues) == 0 {
			return errkind.New(errkind.SpecInvalid, "stop-workers requires --queues or --spec")
		}
		if target == "" || strings.EqualFold(target, "local") {
			return errkind.New(errkind.SpecInvalid, "stop-workers requires a distributed --task-server; the local driver has no out-of-process workers")
		}

		ts, err := buildTaskServer(nil, target)
		if err != nil {
			return err
		}
		if err := ts.StopWorkers(context.Background(), queues); err != nil {
			return err
		}
		log.Successf("sent stop sentinel to workers on %d queue(s): %v", len(queues), queues)
		return nil
	},
}
