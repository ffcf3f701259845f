// Package main provides the entry point for the corpusqa CLI.
package main

import (
	"os"

	"github.com/corpusqa/corpusqa/cmd/corpusqa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
