// Package main is the entry point for the ddlctl CLI binary.
package main

import (
	"os"

	"streamddl/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
