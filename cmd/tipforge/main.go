package main

import (
	"os"

	"github.com/intelstack/tipforge/cmd/tipforge/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
