// Package main provides the entry point for the kbpulse CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/kbpulse/cmd/kbpulse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
