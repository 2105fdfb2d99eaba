package main

import (
	"os"

	"github.com/abramin/callrisk/cmd/callrisk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
