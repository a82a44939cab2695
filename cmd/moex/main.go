package main

import (
	"os"

	"github.com/dan-solli/moex/pkg/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
