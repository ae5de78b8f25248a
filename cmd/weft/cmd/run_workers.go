package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weftrun/weft/pkg/logger"
)

type runWorkersOptions struct {
	TaskServer string
	Echo       bool
}

var runWorkersOpts = &runWorkersOptions{}

func init() {
	rootCmd.AddCommand(runWorkersCmd)
	runWorkersCmd.Flags().StringVar(&runWorkersOpts.TaskServer, "task-server", "", `task server address; overrides merlin.resources.task_server ("local" has no out-of-process workers to launch)`)
	runWorkersCmd.Flags().BoolVar(&runWorkersOpts.Echo, "echo", false, "print each worker's resolved queue set without launching it")
}

var runWorkersCmd = &cobra.Command{
	Use:   "run-workers SPEC",
	Short: "Launch a worker process per merlin.resources.workers entry, blocking until stopped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()
		spec, err := loadSpec(args[0], nil)
		if err != nil {
			return err
		}

		workerNames := make([]string, 0, len(spec.Merlin.Resources.Workers))
		for name := range spec.Merlin.Resources.Workers {
			workerNames = append(workerNames, name)
		}
		if len(workerNames) == 0 {
			workerNames = []string{"default"}
		}

		ts, err := buildTaskServer(spec, runWorkersOpts.TaskServer)
		if err != nil {
			return err
		}

		a := buildAdapter(spec, "", true)
		exec := buildExecutor(a, spec, false)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		eg, egCtx := errgroup.WithContext(ctx)
		for _, name := range workerNames {
			name := name
			var queues []string
			if name == "default" && len(spec.Merlin.Resources.Workers) == 0 {
				queues = spec.AllTaskQueues()
			} else {
				queues, err = spec.WorkerQueues(name)
				if err != nil {
					return err
				}
			}

			if runWorkersOpts.Echo {
				log.Infof("worker %q would drain queues %v", name, queues)
				continue
			}

			log.Infof("launching worker %q draining queues %v", name, queues)
			eg.Go(func() error {
				return ts.LaunchWorkers(egCtx, name, queues, exec)
			})
		}

		if runWorkersOpts.Echo {
			return nil
		}
		return eg.Wait()
	},
}
