package harness

import (
	"time"

	"github.com/coderag/mcpconform/jsonrpc"
)

// ErrorKind classifies what went wrong with a step, if anything.
type ErrorKind string

const (
	// ErrorKindNone marks a step that completed as expected.
	ErrorKindNone ErrorKind = ""
	// ErrorKindSpawn marks a target whose process failed to start.
	ErrorKindSpawn ErrorKind = "spawn"
	// ErrorKindBrokenPipe marks a write after the peer closed its input.
	ErrorKindBrokenPipe ErrorKind = "broken-pipe"
	// ErrorKindTimeout marks a request with no matching response in time.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindRawParse marks a response that was not valid framed JSON.
	ErrorKindRawParse ErrorKind = "raw-parse"
	// ErrorKindProcessExited marks a request outstanding when the peer died.
	ErrorKindProcessExited ErrorKind = "process-exited"
	// ErrorKindNotRun marks steps skipped because the target's run aborted.
	ErrorKindNotRun ErrorKind = "not-run"
)

// TestResult is the immutable outcome of one step against one target.
type TestResult struct {
	Server    string           `json:"server"`
	StepIndex int              `json:"stepIndex"`
	Request   *jsonrpc.Request `json:"request"`
	// Response is nil when no parseable response was observed.
	Response *jsonrpc.AnyMessage `json:"response,omitempty"`
	// ResponseTimeMs spans from flushing the request's bytes to observing the
	// matching response's terminating newline, or to error detection.
	ResponseTimeMs float64 `json:"responseTimeMs"`
	// RawBytes holds exactly what the peer sent for this step, pre-parse.
	RawBytes []byte    `json:"rawBytes,omitempty"`
	Error    ErrorKind `json:"error,omitempty"`
	// Detail carries the underlying error text when Error is set.
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the step completed without error.
func (r *TestResult) OK() bool { return r.Error == ErrorKindNone }

// RawString renders RawBytes for human inspection.
func (r *TestResult) RawString() string { return string(r.RawBytes) }

// OutOfBandRecord is an inbound frame that matched no pending request:
// unsolicited notifications, peer-initiated requests, stray responses, or
// unparseable lines that could not be attributed to a step.
type OutOfBandRecord struct {
	At       time.Time `json:"at"`
	RawBytes []byte    `json:"rawBytes"`
	// Method is set when the frame decoded as a request or notification.
	Method string `json:"method,omitempty"`
}

// TargetReport is the per-target section of a RunReport.
type TargetReport struct {
	Server  string       `json:"server"`
	Results []TestResult `json:"results"`
	// SpawnError is set when the process never started; Results is then empty.
	SpawnError string            `json:"spawnError,omitempty"`
	OutOfBand  []OutOfBandRecord `json:"outOfBand,omitempty"`
	// ExitCode is the target's exit code, when it exited during the run
	// or during shutdown. Diagnostic only, never a protocol verdict.
	ExitCode    *int     `json:"exitCode,omitempty"`
	StderrLines []string `json:"stderrLines,omitempty"`
}

// ErrorCount tallies results with a non-empty error kind.
func (t *TargetReport) ErrorCount() int {
	n := 0
	for i := range t.Results {
		if !t.Results[i].OK() {
			n++
		}
	}
	return n
}

// RunReport accumulates every target's results for one run. It is built
// incrementally by the Runner and read-only after the run completes.
type RunReport struct {
	RunID     string    `json:"runId"`
	Script    string    `json:"script"`
	StartedAt time.Time `json:"startedAt"`

	// Targets preserves the order servers were configured in.
	Targets []*TargetReport `json:"targets"`
}

// Section returns the report for the named target, or nil.
func (r *RunReport) Section(server string) *TargetReport {
	for _, t := range r.Targets {
		if t.Server == server {
			return t
		}
	}
	return nil
}
