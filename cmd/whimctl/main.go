package main

import (
	"os"

	"github.com/skylarbarrera/whim/cmd/whimctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
