package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/coderag/mcpconform/relay"
	"github.com/coderag/mcpconform/script"
)

func cmdRelay(ctx context.Context, env envConfig, args []string) int {
	fs := newFlagSet("relay")
	servers := &serverList{}
	fs.Var(servers, "server", "target as name=executable [args...] (exactly one)")
	fs.Var(&envList{servers: servers}, "env", "environment override as servername=KEY=VALUE (repeatable)")
	chunk := fs.Int("chunk", env.RelayChunkSize, "copy buffer size in bytes")
	logLevel := fs.String("log-level", env.LogLevel, "debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if len(servers.configs) != 1 {
		return fail(errors.New("relay needs exactly one -server target"))
	}

	r := relay.New(os.Stderr,
		relay.WithLogger(newLogger(*logLevel)),
		relay.WithChunkSize(*chunk),
	)
	code, err := r.Run(ctx, servers.configs[0], os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return code
}

func cmdSchema() int {
	b, err := script.SchemaJSON()
	if err != nil {
		return fail(fmt.Errorf("schema: %w", err))
	}
	fmt.Println(string(b))
	return 0
}
