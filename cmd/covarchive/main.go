// Package main provides the entry point for the covarchive CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/covarchive/cmd/covarchive/commands"
	"github.com/Sumatoshi-tech/covarchive/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
