package harness

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderag/mcpconform/internal/correlate"
	"github.com/coderag/mcpconform/internal/logctx"
	"github.com/coderag/mcpconform/proc"
	"github.com/coderag/mcpconform/script"
	"github.com/coderag/mcpconform/transport"
)

// errProcessExited marks waits resolved because the peer died first.
var errProcessExited = errors.New("process exited before responding")

// Defaults mirror the timings the probe scripts have always used.
const (
	DefaultStepTimeout   = 5 * time.Second
	DefaultSettleDelay   = 100 * time.Millisecond
	DefaultShutdownGrace = 5 * time.Second
)

// Runner executes a script against targets, one step at a time per target.
// A Runner is stateless across runs and safe for concurrent use.
type Runner struct {
	log           *slog.Logger
	stepTimeout   time.Duration
	settleDelay   time.Duration
	shutdownGrace time.Duration
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithStepTimeout sets the default per-step response deadline.
func WithStepTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.stepTimeout = d
		}
	}
}

// WithSettleDelay sets the pause after notifications.
func WithSettleDelay(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.settleDelay = d
		}
	}
}

// WithShutdownGrace sets how long terminate may take before kill.
func WithShutdownGrace(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.shutdownGrace = d
		}
	}
}

// NewRunner constructs a Runner with defaults and applies options.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		log:           slog.Default(),
		stepTimeout:   DefaultStepTimeout,
		settleDelay:   DefaultSettleDelay,
		shutdownGrace: DefaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunAll runs the script against every configured target concurrently and
// assembles the RunReport in configuration order.
func (r *Runner) RunAll(ctx context.Context, cfgs []proc.ServerConfig, s *script.Script) *RunReport {
	rep := &RunReport{
		RunID:     uuid.NewString(),
		Script:    s.Name,
		StartedAt: time.Now(),
		Targets:   make([]*TargetReport, len(cfgs)),
	}

	var wg sync.WaitGroup
	for i := range cfgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tctx := logctx.WithTargetData(ctx, &logctx.TargetData{
				Name:  cfgs[i].Name,
				RunID: rep.RunID,
			})
			rep.Targets[i] = r.RunTarget(tctx, cfgs[i], s)
		}(i)
	}
	wg.Wait()
	return rep
}

// RunTarget spawns the target and runs the script against it. A spawn
// failure is fatal to this target only and yields a report with no results.
func (r *Runner) RunTarget(ctx context.Context, cfg proc.ServerConfig, s *script.Script) *TargetReport {
	h, err := proc.Start(cfg, proc.WithLogger(r.log))
	if err != nil {
		r.log.Error("target failed to start", "target", cfg.Name, "err", err)
		return &TargetReport{Server: cfg.Name, SpawnError: err.Error()}
	}
	return r.Run(ctx, h, s)
}

// Run executes the script against an already-started handle. The handle is
// borrowed for the duration of the run; Run shuts the process down before
// returning, so the handle must not be reused.
func (r *Runner) Run(ctx context.Context, h *proc.Handle, s *script.Script) *TargetReport {
	if _, ok := logctx.TargetDataFromContext(ctx); !ok {
		ctx = logctx.WithTargetData(ctx, &logctx.TargetData{Name: h.Name()})
	}
	rep := &TargetReport{Server: h.Name()}

	conn := transport.New(h.Name(), h, h.Stdout(), transport.WithLogger(r.log))
	table := correlate.NewTable()

	// Pump inbound frames into the correlator. The frame channel closes on
	// peer EOF, after draining whatever the pipe still buffered, so a server
	// that answers and then exits still resolves its step.
	go func() {
		for f := range conn.Frames() {
			table.Dispatch(f)
		}
		table.FailAll(errProcessExited)
	}()

	// A run-level abort must unblock every pending wait promptly.
	stopAbort := context.AfterFunc(ctx, func() {
		table.FailAll(ctx.Err())
	})
	defer stopAbort()

	abortDetail := ""
	for i := range s.Steps {
		step := &s.Steps[i]
		res := TestResult{Server: h.Name(), StepIndex: i, Request: step.Request}

		if abortDetail != "" {
			res.Error = ErrorKindNotRun
			res.Detail = abortDetail
			rep.Results = append(rep.Results, res)
			continue
		}

		stepCtx := logctx.WithStepData(ctx, &logctx.StepData{Index: i, Method: step.Request.Method})
		r.runStep(stepCtx, h, conn, table, step, &res)
		rep.Results = append(rep.Results, res)

		switch res.Error {
		case ErrorKindBrokenPipe:
			abortDetail = "peer closed its input: " + res.Detail
		case ErrorKindProcessExited:
			abortDetail = "process exited at step " + strconv.Itoa(i)
		}
	}

	h.Shutdown(r.shutdownGrace)

	for _, f := range table.OutOfBand() {
		rec := OutOfBandRecord{At: f.At, RawBytes: f.Raw}
		if f.Msg != nil {
			rec.Method = f.Msg.Method
		}
		rep.OutOfBand = append(rep.OutOfBand, rec)
	}
	if code, ok := h.ExitCode(); ok {
		rep.ExitCode = &code
	}
	rep.StderrLines = h.StderrLines()

	r.log.Info("target run complete",
		"target", h.Name(),
		"steps", len(rep.Results),
		"errors", rep.ErrorCount(),
	)
	return rep
}

// runStep performs one send (and, when expected, one correlated wait),
// recording the outcome in res. Errors never propagate; later steps must
// still run so the report shows whether the server recovers.
func (r *Runner) runStep(ctx context.Context, h *proc.Handle, conn *transport.Conn, table *correlate.Table, step *script.Step, res *TestResult) {
	timeout := step.Timeout.Duration
	if timeout <= 0 {
		timeout = r.stepTimeout
	}

	msgType := "request"
	if step.Request.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: step.Request.Method,
		ID:     step.Request.ID.String(),
		Type:   msgType,
	})
	r.log.DebugContext(ctx, "dispatching step")
	defer func() {
		r.log.DebugContext(ctx, "step complete", "error", string(res.Error))
	}()

	if !step.ExpectResponse {
		if err := conn.Send(step.Request); err != nil {
			r.recordSendFailure(h, res, err)
			return
		}
		// Settle delay: give the peer time to process the notification.
		// Silence here is correct, never suspicious.
		select {
		case <-time.After(r.settleDelay):
		case <-ctx.Done():
		}
		return
	}

	// Register before sending so even an instant response finds the pending
	// entry (the subscribe-before-emit rule).
	w, err := table.Register(step.Request.ID, time.Now(), timeout)
	if err != nil {
		res.Error = ErrorKindProcessExited
		res.Detail = err.Error()
		return
	}

	flushed := time.Now()
	if err := conn.Send(step.Request); err != nil {
		table.Cancel(step.Request.ID)
		r.recordSendFailure(h, res, err)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var out correlate.Outcome
	select {
	case out = <-w.Done():
	case <-timer.C:
		// Sweep; if a response won the race the waiter already holds it.
		table.Expire(time.Now())
		out = <-w.Done()
	}

	elapsed := time.Since(flushed)
	switch {
	case out.Err == nil && out.Frame.ParseErr != nil:
		res.Error = ErrorKindRawParse
		res.Detail = out.Frame.ParseErr.Error()
		res.RawBytes = out.Frame.Raw
		res.ResponseTimeMs = millis(out.Frame.At.Sub(flushed))
	case out.Err == nil:
		res.Response = out.Frame.Msg
		res.RawBytes = out.Frame.Raw
		res.ResponseTimeMs = millis(out.Frame.At.Sub(flushed))
	case errors.Is(out.Err, correlate.ErrTimeout):
		if h.Alive() {
			res.Error = ErrorKindTimeout
		} else {
			res.Error = ErrorKindProcessExited
		}
		res.Detail = out.Err.Error()
		res.ResponseTimeMs = millis(elapsed)
	case errors.Is(out.Err, errProcessExited):
		res.Error = ErrorKindProcessExited
		res.Detail = out.Err.Error()
		res.ResponseTimeMs = millis(elapsed)
	default:
		// Run-level aborts surface as timeouts on the step they interrupted.
		res.Error = ErrorKindTimeout
		res.Detail = out.Err.Error()
		res.ResponseTimeMs = millis(elapsed)
	}
}

func (r *Runner) recordSendFailure(h *proc.Handle, res *TestResult, err error) {
	if errors.Is(err, proc.ErrBrokenPipe) || h.Alive() {
		res.Error = ErrorKindBrokenPipe
	} else {
		res.Error = ErrorKindProcessExited
	}
	res.Detail = err.Error()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
