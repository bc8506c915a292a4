package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/coderag/mcpconform/compare"
	"github.com/coderag/mcpconform/harness"
)

func cmdCompare(ctx context.Context, env envConfig, args []string) int {
	fs := newFlagSet("compare")
	servers := &serverList{}
	fs.Var(servers, "server", "target as name=executable [args...]; first is the reference (repeatable)")
	fs.Var(&envList{servers: servers}, "env", "environment override as servername=KEY=VALUE (repeatable)")
	scriptPath := fs.String("script", "", "script file (JSON); default is the built-in probe")
	scenario := fs.String("scenario", "default", "built-in script when no -script: default | unknown-methods")
	timeout := fs.Duration("timeout", env.StepTimeout, "default per-step response timeout")
	settle := fs.Duration("settle", env.SettleDelay, "delay after notifications")
	logLevel := fs.String("log-level", env.LogLevel, "debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if len(servers.configs) < 2 {
		return fail(errors.New("compare needs at least two -server targets"))
	}

	s, err := resolveScript(*scriptPath, *scenario)
	if err != nil {
		return fail(err)
	}

	runner := harness.NewRunner(
		harness.WithLogger(newLogger(*logLevel)),
		harness.WithStepTimeout(*timeout),
		harness.WithSettleDelay(*settle),
		harness.WithShutdownGrace(env.ShutdownGrace),
	)
	rep := runner.RunAll(ctx, servers.configs, s)
	printReport(os.Stdout, rep)

	ref := rep.Targets[0]
	code := runExitCode(rep)
	for _, cand := range rep.Targets[1:] {
		divs := compare.Reports(ref, cand)
		fmt.Fprintf(os.Stdout, "\n=== %s vs %s: %d divergence(s) ===\n", cand.Server, ref.Server, len(divs))
		printDivergences(os.Stdout, divs)
		if len(divs) > 0 {
			code = 1
		}
	}
	return code
}
