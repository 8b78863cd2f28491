// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/rabbit-cli/cmd"
)

// Allows mocking os.Exit in tests.
var osExit = os.Exit

func main() {
	osExit(run())
}

func run() int {
	// Interrupts cancel the running task; --keep-open waits on the same signal.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return exitCode(cmd.Execute(ctx))
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}
