// Command mcpconform drives stdio MCP servers through scripted JSON-RPC
// sequences and reports per-step outcomes, byte-level divergences between
// targets, or a raw forensic relay capture.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const usageText = `usage: mcpconform <mode> [flags]

modes:
  run      execute a script against one or more targets
  compare  execute a script against targets and diff them against the first
  relay    transparently relay stdio to a target, capturing every byte
  schema   print the JSON Schema for script files

run 'mcpconform <mode> -h' for mode flags.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usageText)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcpconform: %v\n", err)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "run":
		code = cmdRun(ctx, env, os.Args[2:])
	case "compare":
		code = cmdCompare(ctx, env, os.Args[2:])
	case "relay":
		code = cmdRelay(ctx, env, os.Args[2:])
	case "schema":
		code = cmdSchema()
	case "-h", "--help", "help":
		fmt.Println(usageText)
	default:
		fmt.Fprintf(os.Stderr, "mcpconform: unknown mode %q\n\n%s\n", os.Args[1], usageText)
		code = 2
	}
	os.Exit(code)
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "mcpconform: %v\n", err)
	return 2
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mcpconform %s [flags]\n", name)
		fs.PrintDefaults()
	}
	return fs
}
