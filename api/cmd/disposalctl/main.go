package main

import (
	"errors"
	"fmt"
	"os"
)

const (
	ExitSuccess = 0
	// ExitRejected means the engine answered but could not predict.
	ExitRejected = 1
	ExitError    = 2
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var rej *rejectedError
		if errors.As(err, &rej) {
			os.Exit(ExitRejected)
		}
		os.Exit(ExitError)
	}
}
