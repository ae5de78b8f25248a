package main

import (
	"os"

	"github.com/weftrun/weft/cmd/weft/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
