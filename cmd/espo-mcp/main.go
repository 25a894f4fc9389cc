package main

import (
	"os"

	"github.com/ToughForge/EspoMCP/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
