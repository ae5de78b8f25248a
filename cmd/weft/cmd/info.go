package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(infoCmd)
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the resolved app configuration and runtime environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, _ := os.Getwd()
		hostname, _ := os.Hostname()

		fmt.Printf("weft %s (%s, built %s)\n", Version, Commit, Date)
		fmt.Printf("go runtime:   %s on %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("hostname:     %s\n", hostname)
		fmt.Printf("cwd:          %s\n", cwd)
		fmt.Printf("task server:  %s\n", loadedAppConfig.TaskServer)
		fmt.Printf("log level:    %s\n", loadedAppConfig.LogLevel)
		fmt.Printf("workspace:    %s\n", loadedAppConfig.Workspace)
		return nil
	},
}
