package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pattern-trader/internal/cli"
	"pattern-trader/internal/logging"
)

func main() {
	logger := logging.New(logging.DefaultOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(logger).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
