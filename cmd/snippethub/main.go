// Package main is the entry point of the snippethub command-line client.
//
// All behavior lives in internal/cli; main only wires the process signals
// and the exit code.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/snippethub/internal/cli"
)

func main() {
	// Ctrl+C stops long-running commands such as "comments watch" cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
