package main

import (
	"os"

	"github.com/stratamed/policymatch/cmd/policymatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
