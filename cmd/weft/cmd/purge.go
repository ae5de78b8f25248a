package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/logger"
)

type purgeOptions struct {
	Force      bool
	TaskServer string
}

var purgeOpts = &purgeOptions{}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVar(&purgeOpts.Force, "force", false, "purge without prompting for confirmation")
	purgeCmd.Flags().StringVar(&purgeOpts.TaskServer, "task-server", "", "task server address; overrides merlin.resources.task_server")
}

var purgeCmd = &cobra.Command{
	Use:   "purge SPEC",
	Short: "Discard every pending task on a study's queues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()
		spec, err := loadSpec(args[0], nil)
		if err != nil {
			return err
		}

		queues := spec.AllTaskQueues()
		if !purgeOpts.Force {
			log.Warnf("about to purge %d queue(s) for study %q: %v (pass --force to confirm)", len(queues), spec.Name, queues)
			return nil
		}

		ts, err := buildTaskServer(spec, purgeOpts.TaskServer)
		if err != nil {
			return err
		}

		n, err := ts.PurgeTasks(context.Background(), queues)
		if err != nil {
			return err
		}
		log.Successf("purged %d pending task(s) across %d queue(s)", n, len(queues))
		return nil
	},
}
