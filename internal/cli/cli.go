// Package cli provides the command-line interface for ArenaGo
package cli

import (
	"fmt"
	"os"
)

// Run starts the CLI application
func Run() {
	rootCmd := NewRootCmd()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
