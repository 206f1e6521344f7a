// Package main provides the entry point for the doclex CLI.
package main

import (
	"os"

	"github.com/doclex/doclex/cmd/doclex/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
