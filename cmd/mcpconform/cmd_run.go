package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coderag/mcpconform/harness"
	"github.com/coderag/mcpconform/script"
)

func cmdRun(ctx context.Context, env envConfig, args []string) int {
	fs := newFlagSet("run")
	servers := &serverList{}
	fs.Var(servers, "server", "target as name=executable [args...] (repeatable)")
	fs.Var(&envList{servers: servers}, "env", "environment override as servername=KEY=VALUE (repeatable)")
	scriptPath := fs.String("script", "", "script file (JSON); default is the built-in probe")
	scenario := fs.String("scenario", "default", "built-in script when no -script: default | unknown-methods")
	timeout := fs.Duration("timeout", env.StepTimeout, "default per-step response timeout")
	settle := fs.Duration("settle", env.SettleDelay, "delay after notifications")
	watch := fs.Bool("watch", false, "re-run whenever the script file changes")
	jsonOut := fs.Bool("json", false, "emit the RunReport as JSON instead of text")
	logLevel := fs.String("log-level", env.LogLevel, "debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if len(servers.configs) == 0 {
		return fail(errors.New("at least one -server is required"))
	}
	if *watch && *scriptPath == "" {
		return fail(errors.New("-watch requires -script"))
	}

	log := newLogger(*logLevel)
	runner := harness.NewRunner(
		harness.WithLogger(log),
		harness.WithStepTimeout(*timeout),
		harness.WithSettleDelay(*settle),
		harness.WithShutdownGrace(env.ShutdownGrace),
	)

	runOnce := func() (int, error) {
		s, err := resolveScript(*scriptPath, *scenario)
		if err != nil {
			return 2, err
		}
		rep := runner.RunAll(ctx, servers.configs, s)
		if *jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rep); err != nil {
				return 2, err
			}
		} else {
			printReport(os.Stdout, rep)
		}
		return runExitCode(rep), nil
	}

	code, err := runOnce()
	if err != nil {
		return fail(err)
	}
	if !*watch {
		return code
	}
	if err := watchAndRerun(ctx, *scriptPath, runOnce); err != nil && !errors.Is(err, context.Canceled) {
		return fail(err)
	}
	return 0
}

// resolveScript loads the script file or selects a built-in probe.
func resolveScript(path, scenario string) (*script.Script, error) {
	if path != "" {
		return script.Load(path)
	}
	switch scenario {
	case "default":
		return script.DefaultProbe(), nil
	case "unknown-methods":
		return script.UnknownMethodProbe(), nil
	default:
		return nil, fmt.Errorf("unknown scenario %q", scenario)
	}
}

func runExitCode(rep *harness.RunReport) int {
	for _, t := range rep.Targets {
		if t.SpawnError != "" || t.ErrorCount() > 0 {
			return 1
		}
	}
	return 0
}

// watchAndRerun blocks, re-running whenever the script file is written.
// Editors often replace files instead of writing in place, so the path is
// re-added after rename/remove events.
func watchAndRerun(ctx context.Context, path string, run func() (int, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	fmt.Fprintf(os.Stderr, "watching %s; edit to re-run, ^C to stop\n", path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// Give the editor a moment to drop the replacement file.
				time.Sleep(50 * time.Millisecond)
				_ = w.Add(path)
			}
			if _, err := run(); err != nil {
				fmt.Fprintf(os.Stderr, "mcpconform: %v\n", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "mcpconform: watch: %v\n", err)
		}
	}
}
