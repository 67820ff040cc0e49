package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess    = 0 // Every DMU was evaluated
	ExitSkippedDMU = 1 // One or more DMUs had no optimal solution
	ExitError      = 2 // Input, configuration or runtime error
)

// SkippedDMUsError indicates that the batch ran to completion but at least
// one DMU was skipped because its LP was not solved to optimality.
type SkippedDMUsError struct {
	Message string
}

func (e *SkippedDMUsError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var skippedErr *SkippedDMUsError
		if errors.As(err, &skippedErr) {
			os.Exit(ExitSkippedDMU)
		}

		os.Exit(ExitError)
	}
}
