package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Interrupted commands (run, collect, logs -f) exit 130 like a shell would.
const exitInterrupted = 130

func main() {
	os.Exit(execute(newRootCommand().Execute))
}

func execute(run func() error) int {
	err := run()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		fmt.Fprintln(os.Stderr, "timelapse:", err)
		return 1
	}
}
