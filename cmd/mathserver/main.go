// Package main runs the math tool backend on stdin/stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/toolrouter/toolserver"
	"github.com/effective-security/toolrouter/toolserver/mathtools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := toolserver.NewServer()
	if err := mathtools.Register(srv); err != nil {
		fmt.Fprintln(os.Stderr, "mathserver:", err)
		os.Exit(1)
	}

	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "mathserver:", err)
		os.Exit(1)
	}
}
