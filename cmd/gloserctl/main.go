package main

import (
	"os"

	"github.com/aiox-platform/gloser/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
