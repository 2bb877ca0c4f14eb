// Package main is the pxsort command.
package main

import (
	"os"

	"github.com/leapstack-labs/pxsort/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
