package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/logger"
)

type monitorOptions struct {
	Sleep int
}

var monitorOpts = &monitorOptions{}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorOpts.Sleep, "sleep", 10, "seconds between status polls")
}

var monitorCmd = &cobra.Command{
	Use:   "monitor SPEC",
	Short: "Poll a study's most recent run until every step reaches a terminal status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := loadSpec(args[0], nil)
		if err != nil {
			return err
		}
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		runDir, err := latestRunDir(cwd, spec.Name)
		if err != nil {
			return err
		}

		rows, err := renderStatusRows(runDir)
		if err != nil {
			return err
		}
		total := len(rows)
		bar := progressbar.NewOptions(total,
			progressbar.OptionSetDescription(fmt.Sprintf("monitoring %s", spec.Name)),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		log := logger.Get()
		ticker := time.NewTicker(time.Duration(monitorOpts.Sleep) * time.Second)
		defer ticker.Stop()

		for {
			done, failed := 0, 0
			for _, r := range rows {
				switch r.Status {
				case "FINISHED", "DRY_OK":
					done++
				case "FAILED", "CANCELLED":
					done++
					failed++
				}
			}
			_ = bar.Set(done)

			if done >= total {
				_ = bar.Finish()
				if failed > 0 {
					log.Errorf("study %q finished with %d failed step(s)", spec.Name, failed)
				} else {
					log.Successf("study %q finished, all steps reached FINISHED", spec.Name)
				}
				return nil
			}

			<-ticker.C
			if rows, err = renderStatusRows(runDir); err != nil {
				return err
			}
		}
	},
}
