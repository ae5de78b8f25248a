package cmd

import (
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/appconfig"
	"github.com/weftrun/weft/pkg/logger"
)

var (
	cfgFile      string
	logLevelFlag string
	noColorFlag  bool

	// loadedAppConfig is populated by rootCmd's PersistentPreRunE and read by
	// buildTaskServer as the last fallback after --task-server and the
	// specification's own merlin.resources.task_server.
	loadedAppConfig = appconfig.Default()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft is a parameterized workflow orchestrator",
	Long: `weft expands a declarative study description into a concrete DAG of
shell-command steps and runs it, either on the local machine or by
dispatching work to a distributed task queue of remote workers.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			if p, err := appconfig.DefaultPath(); err == nil {
				path = p
			}
		}
		if path != "" {
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}
			loadedAppConfig = cfg
		}

		logOpts := logger.DefaultOptions()
		logOpts.ColorConsole = !noColorFlag
		if lvl, ok := parseLogLevel(logLevelFlag); ok && cmd.Flags().Changed("log-level") {
			logOpts.ConsoleLevel = lvl
		} else if lvl, ok := parseLogLevel(loadedAppConfig.LogLevel); ok {
			logOpts.ConsoleLevel = lvl
		}
		logger.Init(logOpts)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It is called by main.main() once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a weft config file (see 'weft config')")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colorized console output")
}

func parseLogLevel(raw string) (logger.Level, bool) {
	switch raw {
	case "debug":
		return logger.DebugLevel, true
	case "info":
		return logger.InfoLevel, true
	case "warn", "warning":
		return logger.WarnLevel, true
	case "error":
		return logger.ErrorLevel, true
	default:
		return logger.InfoLevel, false
	}
}
