package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coderag/mcpconform/refserver"
)

func main() {
	log.SetPrefix("[refserver] ")
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := refserver.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("serve: %v", err)
	}
}
