package cmd

import (
	"context"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/taskserver"
)

type queryWorkersOptions struct {
	TaskServer string
}

var queryWorkersOpts = &queryWorkersOptions{}

func init() {
	rootCmd.AddCommand(queryWorkersCmd)
	queryWorkersCmd.Flags().StringVar(&queryWorkersOpts.TaskServer, "task-server", "", `task server address (redis host:port); required unless "local" (which has no workers)`)
}

var queryWorkersCmd = &cobra.Command{
	Use:   "query-workers",
	Short: "List workers currently heartbeating against a task server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryWorkersOpts.TaskServer == "" {
			return errkind.New(errkind.SpecInvalid, "query-workers requires --task-server")
		}
		client := redis.NewClient(&redis.Options{Addr: queryWorkersOpts.TaskServer})
		ts := taskserver.NewRedis(client, "")

		workers, err := ts.QueryWorkers(context.Background())
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"WORKER", "QUEUES", "LAST HEARTBEAT"})
		table.SetBorder(false)
		for _, w := range workers {
			table.Append([]string{w.Name, joinQueues(w.Queues), w.LastHeartbeat.Format("15:04:05")})
		}
		table.Render()
		return nil
	},
}

func joinQueues(queues []string) string {
	out := ""
	for i, q := range queues {
		if i > 0 {
			out += ","
		}
		out += q
	}
	return out
}
