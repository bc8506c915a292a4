package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/coderag/mcpconform/compare"
	"github.com/coderag/mcpconform/harness"
)

// stderrTail bounds how much target diagnostic output the text report shows.
const stderrTail = 10

func printReport(w io.Writer, rep *harness.RunReport) {
	fmt.Fprintf(w, "run %s (script %s)\n", rep.RunID, rep.Script)
	for _, t := range rep.Targets {
		printTarget(w, t)
	}
}

func printTarget(w io.Writer, t *harness.TargetReport) {
	fmt.Fprintf(w, "\n=== %s ===\n", t.Server)
	if t.SpawnError != "" {
		fmt.Fprintf(w, "SPAWN FAILED: %s\n", t.SpawnError)
		return
	}

	for i := range t.Results {
		r := &t.Results[i]
		method := ""
		if r.Request != nil {
			method = r.Request.Method
		}
		switch {
		case r.OK() && r.Response != nil:
			note := ""
			if e := r.Response.Error; e != nil {
				name := e.Code.Name()
				if name == "" {
					name = fmt.Sprintf("%d", e.Code)
				}
				note = "  error: " + name
			}
			fmt.Fprintf(w, "PASS  %-2d %-20s %8.1fms  %d bytes%s\n", r.StepIndex, method, r.ResponseTimeMs, len(r.RawBytes), note)
		case r.OK():
			fmt.Fprintf(w, "PASS  %-2d %-20s (notification)\n", r.StepIndex, method)
		default:
			fmt.Fprintf(w, "FAIL  %-2d %-20s %s: %s\n", r.StepIndex, method, r.Error, r.Detail)
			if len(r.RawBytes) > 0 {
				fmt.Fprintf(w, "      raw: %q\n", truncate(r.RawString(), 120))
			}
		}
	}

	if len(t.OutOfBand) > 0 {
		fmt.Fprintf(w, "out-of-band: %d message(s)\n", len(t.OutOfBand))
		for _, rec := range t.OutOfBand {
			label := rec.Method
			if label == "" {
				label = "unparseable"
			}
			fmt.Fprintf(w, "      %-20s %q\n", label, truncate(string(rec.RawBytes), 120))
		}
	}
	if t.ExitCode != nil {
		fmt.Fprintf(w, "exit code: %d\n", *t.ExitCode)
	}
	if n := len(t.StderrLines); n > 0 {
		fmt.Fprintf(w, "stderr (%d line(s), last %d):\n", n, min(n, stderrTail))
		start := n - stderrTail
		if start < 0 {
			start = 0
		}
		for _, line := range t.StderrLines[start:] {
			fmt.Fprintf(w, "      %s\n", line)
		}
	}
}

func printDivergences(w io.Writer, divs []compare.Divergence) {
	for _, d := range divs {
		fmt.Fprintln(w, d.String())
		if d.Diff != "" {
			for _, line := range strings.Split(d.Diff, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
