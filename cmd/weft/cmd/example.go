package cmd

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/pkg/errkind"
	"github.com/weftrun/weft/pkg/logger"
)

//go:embed examples/*.yaml
var bundledExamples embed.FS

func init() {
	rootCmd.AddCommand(exampleCmd)
}

var exampleCmd = &cobra.Command{
	Use:   "example [WORKFLOW]",
	Short: "List or copy a bundled example study specification into the current directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := exampleNames()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			fmt.Println("available examples:")
			for _, n := range names {
				fmt.Printf("  %s\n", n)
			}
			fmt.Println("run `weft example NAME` to copy one into the current directory")
			return nil
		}

		return copyExample(args[0], names)
	},
}

func exampleNames() ([]string, error) {
	entries, err := bundledExamples.ReadDir("examples")
	if err != nil {
		return nil, fmt.Errorf("reading bundled examples: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

func copyExample(name string, known []string) error {
	log := logger.Get()

	found := false
	for _, n := range known {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return errkind.New(errkind.SpecInvalid, fmt.Sprintf("unknown example %q; run `weft example` with no arguments to list them", name))
	}

	data, err := bundledExamples.ReadFile(filepath.Join("examples", name+".yaml"))
	if err != nil {
		return err
	}

	dest := name + ".yaml"
	if _, err := os.Stat(dest); err == nil {
		return errkind.New(errkind.SpecInvalid, fmt.Sprintf("%s already exists in the current directory", dest))
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	log.Successf("wrote %s", dest)
	return nil
}
