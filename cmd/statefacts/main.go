// Command statefacts serves US state reference data merged with per-state
// fun facts, and seeds or exports the fact store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"statefacts/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "statefacts:", err)
		os.Exit(1)
	}
}
