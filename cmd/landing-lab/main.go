package main

import (
	"os"

	"github.com/landing-lab/landing-lab/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
