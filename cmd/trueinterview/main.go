package main

import (
	"os"
)

// FUNCTIONAL DISCOVERY: Main entry point; cobra reports the error, we only set the exit code
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
