package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/weftrun/weft/pkg/appconfig"
	"github.com/weftrun/weft/pkg/logger"
)

type configOptions struct {
	Output string
	Force  bool
}

var configOpts = &configOptions{}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVar(&configOpts.Output, "output", "", "write the config here instead of the default $HOME/.weft/app.yaml")
	configCmd.Flags().BoolVar(&configOpts.Force, "force", false, "overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration, or write a default one to disk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Get()

		path := configOpts.Output
		if path == "" {
			var err error
			path, err = appconfig.DefaultPath()
			if err != nil {
				return err
			}
		}

		if _, err := os.Stat(path); err == nil && !configOpts.Force {
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("# %s (already exists; pass --force to overwrite)\n", path)
			return yaml.NewEncoder(os.Stdout).Encode(cfg)
		}

		if err := appconfig.Write(path, appconfig.Default()); err != nil {
			return err
		}
		log.Successf("wrote default config to %s", path)
		return nil
	},
}
