// Package main is the entry point for pgedge-retailkpi.
package main

import (
	"fmt"
	"os"

	"github.com/pgEdge/pgedge-retailkpi/internal/cli"

	// Register storage backends
	_ "github.com/pgEdge/pgedge-retailkpi/internal/store/postgres"
	_ "github.com/pgEdge/pgedge-retailkpi/internal/store/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
