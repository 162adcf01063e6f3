package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess  = 0 // Command completed
	ExitDegraded = 1 // Run stored, but at least one prompt result is degraded (--strict)
	ExitError    = 2 // Configuration, validation or persistence error
)

// DegradedRunError reports that a run completed with degraded prompt results.
type DegradedRunError struct {
	Ticker   string
	Degraded int
	Total    int
}

func (e *DegradedRunError) Error() string {
	return fmt.Sprintf("%s: %d of %d prompt results degraded", e.Ticker, e.Degraded, e.Total)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var degraded *DegradedRunError
		if errors.As(err, &degraded) {
			os.Exit(ExitDegraded)
		}
		os.Exit(ExitError)
	}
}
