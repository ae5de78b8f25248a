package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/adapter"
	"github.com/weftrun/weft/pkg/cache"
	"github.com/weftrun/weft/pkg/provenance"
)

type statusOptions struct {
	CSV string
}

var statusOpts = &statusOptions{}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusOpts.CSV, "csv", "", "write the status table to this path as CSV instead of the console")
}

var statusCmd = &cobra.Command{
	Use:   "status SPEC",
	Short: "Report the status of every step in a study's most recent run",
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

		if statusOpts.CSV != "" {
			return writeStatusCSV(statusOpts.CSV, rows)
		}
		printStatusTable(runDir, rows)
		return nil
	},
}

type statusRow struct {
	Name    string
	Status  string
	JobIDs  string
}

// renderStatusRows reads back every step's status from the run's provenance
// blob through a StudyCache that lives only for this call: the cache is
// closed on return, so every call (each monitor poll included) reads the
// status file from disk again.
func renderStatusRows(runDir string) ([]statusRow, error) {
	studyCache := cache.NewStudyCache()
	defer studyCache.Close()

	const cacheKey = "all-statuses"
	var statuses map[string]provenance.StepStatus
	if cached, ok := studyCache.Get(cacheKey); ok {
		statuses = cached.(map[string]provenance.StepStatus)
	} else {
		var err error
		statuses, err = provenance.ReadAllStatuses(runDir)
		if err != nil {
			return nil, err
		}
		studyCache.Set(cacheKey, statuses)
	}

	doc, err := provenance.Load(provenance.ExpandedPath(runDir, specNameFromRunDir(runDir)))
	var names []string
	if err == nil {
		names = doc.Nodes
	} else {
		for name := range statuses {
			names = append(names, name)
		}
	}

	rows := make([]statusRow, 0, len(names))
	for _, name := range names {
		if name == "_source" {
			continue
		}
		st := statuses[name]
		if finishedSentinelExists(runDir, name) {
			st.Status = "FINISHED"
		}
		rows = append(rows, statusRow{Name: name, Status: st.Status, JobIDs: fmt.Sprint(st.JobIDs)})
	}
	return rows, nil
}

// finishedSentinelExists treats the on-disk MERLIN_FINISHED marker as
// authoritative over a stale status-blob entry, matching the local
// adapter's completion marker.
func finishedSentinelExists(runDir, stepName string) bool {
	_, err := os.Stat(runDir + "/" + stepName + "/" + adapter.FinishedSentinel)
	return err == nil
}

// specNameFromRunDir recovers the study name from a "<name>_<timestamp>"
// run directory basename.
func specNameFromRunDir(runDir string) string {
	base := runDir
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '_' {
			return base[:i]
		}
	}
	return base
}

func printStatusTable(runDir string, rows []statusRow) {
	fmt.Printf("study run: %s\n", runDir)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"STEP", "STATUS", "JOB IDS"})
	table.SetBorder(false)
	for _, r := range rows {
		table.Append([]string{r.Name, colorizeStatus(r.Status), r.JobIDs})
	}
	table.Render()
}

func colorizeStatus(status string) string {
	switch status {
	case "FINISHED":
		return color.GreenString(status)
	case "DRY_OK":
		return color.CyanString(status)
	case "FAILED", "TIMEDOUT", "CANCELLED":
		return color.RedString(status)
	case "PENDING", "RUNNING":
		return color.YellowString(status)
	default:
		return status
	}
}

func writeStatusCSV(path string, rows []statusRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"step", "status", "jobids"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Name, r.Status, r.JobIDs}); err != nil {
			return err
		}
	}
	return nil
}
