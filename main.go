package main

import (
	"os"

	"github.com/castorlabs/gantry/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
