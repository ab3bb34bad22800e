// Package main provides the enricher CLI.
package main

import (
	"os"

	"github.com/LuisDee/catalog-enricher/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
