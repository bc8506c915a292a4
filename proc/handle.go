// Package proc owns the lifecycle of one target server process and its three
// byte streams. The handle is deliberately protocol-agnostic: it moves bytes
// and signals, nothing else.
package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrBrokenPipe indicates a write after the peer closed its input.
	ErrBrokenPipe = errors.New("peer closed its input stream")
	// ErrWaitTimeout indicates the process did not exit within the deadline.
	ErrWaitTimeout = errors.New("timed out waiting for process exit")
	// ErrNotStarted indicates an operation on a handle whose process never spawned.
	ErrNotStarted = errors.New("process not started")
)

// maxStderrLines bounds diagnostic capture so a chatty target cannot grow
// memory without bound. Older lines are dropped first.
const maxStderrLines = 2000

// ServerConfig identifies a target server and how to launch it.
// Immutable once a run starts.
type ServerConfig struct {
	// Name uniquely identifies the target within a run.
	Name string `json:"name"`
	// Command is the executable and its arguments.
	Command []string `json:"command"`
	// Env holds environment overrides applied on top of the parent environment.
	Env map[string]string `json:"env,omitempty"`
}

// Handle exclusively owns one child process and its streams. The stdin and
// stdout ends handed to the caller are parent-side pipe files, so waiting on
// the child never invalidates in-flight reads.
type Handle struct {
	cfg ServerConfig
	log *slog.Logger

	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File

	writeMu sync.Mutex

	done     chan struct{}
	exitMu   sync.Mutex
	exitCode int
	exitErr  error

	stderrMu    sync.Mutex
	stderrLines []string
	stderrFn    func(string)
}

// Start spawns the configured process with pipes on all three streams.
// Any failure here is fatal to the target's run.
func Start(cfg ServerConfig, opts ...Option) (*Handle, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("start %q: empty command", cfg.Name)
	}

	h := &Handle{
		cfg:  cfg,
		log:  slog.Default(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("start %q: stdin pipe: %w", cfg.Name, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("start %q: stdout pipe: %w", cfg.Name, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("start %q: stderr pipe: %w", cfg.Name, err)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, fmt.Errorf("start %q: %w", cfg.Name, err)
	}

	// The child holds its own ends now; keep only the parent side.
	stdinR.Close()
	stdoutW.Close()
	stderrW.Close()

	h.cmd = cmd
	h.stdin = stdinW
	h.stdout = stdoutR

	go h.collectStderr(stderrR)
	go h.watchExit()

	h.log.Debug("process started", "target", cfg.Name, "pid", cmd.Process.Pid)
	return h, nil
}

// Name returns the configured target name.
func (h *Handle) Name() string { return h.cfg.Name }

// Stdout returns the reader for the child's primary output stream.
func (h *Handle) Stdout() io.Reader { return h.stdout }

// WriteFrame writes one already-framed message to the child's input and
// returns ErrBrokenPipe if the child closed its end. Writes are serialized so
// concurrent callers never interleave frames.
func (h *Handle) WriteFrame(frame []byte) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	// Loop on short writes; pipes can accept partial chunks under pressure.
	for len(frame) > 0 {
		n, err := h.stdin.Write(frame)
		if err != nil {
			if errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				return fmt.Errorf("write to %q: %w", h.cfg.Name, ErrBrokenPipe)
			}
			return fmt.Errorf("write to %q: %w", h.cfg.Name, err)
		}
		frame = frame[n:]
	}
	return nil
}

// CloseStdin signals end-of-input to the child. Well-behaved stdio servers
// exit when their input closes.
func (h *Handle) CloseStdin() error {
	return h.stdin.Close()
}

// Terminate asks the child to stop: input is closed and SIGTERM delivered.
func (h *Handle) Terminate() error {
	_ = h.stdin.Close()
	if h.cmd.Process == nil {
		return ErrNotStarted
	}
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil && h.Alive() {
		return fmt.Errorf("terminate %q: %w", h.cfg.Name, err)
	}
	return nil
}

// Kill forces termination.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return ErrNotStarted
	}
	if err := h.cmd.Process.Kill(); err != nil && h.Alive() {
		return fmt.Errorf("kill %q: %w", h.cfg.Name, err)
	}
	return nil
}

// Wait blocks until the process exits or the timeout elapses.
func (h *Handle) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Shutdown runs the terminate-then-kill escalation ladder: graceful stop,
// bounded grace wait, forced kill as the last rung.
func (h *Handle) Shutdown(grace time.Duration) {
	if !h.Alive() {
		return
	}
	_ = h.Terminate()
	if err := h.Wait(grace); err == nil {
		return
	}
	h.log.Warn("process ignored terminate, killing", "target", h.cfg.Name)
	_ = h.Kill()
	_ = h.Wait(grace)
}

// Alive reports whether the process has not yet exited.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Exited returns a channel closed when the process exits.
func (h *Handle) Exited() <-chan struct{} { return h.done }

// ExitCode returns the child's exit code. ok is false while still running.
func (h *Handle) ExitCode() (code int, ok bool) {
	select {
	case <-h.done:
	default:
		return 0, false
	}
	h.exitMu.Lock()
	defer h.exitMu.Unlock()
	return h.exitCode, true
}

// StderrLines returns a snapshot of the diagnostic lines captured so far.
// Safe to call at any time; never blocks on the child.
func (h *Handle) StderrLines() []string {
	h.stderrMu.Lock()
	defer h.stderrMu.Unlock()
	out := make([]string, len(h.stderrLines))
	copy(out, h.stderrLines)
	return out
}

func (h *Handle) collectStderr(r io.ReadCloser) {
	defer r.Close()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		h.log.Debug("target stderr", "target", h.cfg.Name, "line", line)
		h.stderrMu.Lock()
		if len(h.stderrLines) >= maxStderrLines {
			h.stderrLines = h.stderrLines[1:]
		}
		h.stderrLines = append(h.stderrLines, line)
		h.stderrMu.Unlock()
		if h.stderrFn != nil {
			h.stderrFn(line)
		}
	}
}

func (h *Handle) watchExit() {
	err := h.cmd.Wait()
	h.exitMu.Lock()
	h.exitErr = err
	h.exitCode = h.cmd.ProcessState.ExitCode()
	h.exitMu.Unlock()
	close(h.done)
	h.log.Debug("process exited", "target", h.cfg.Name, "code", h.cmd.ProcessState.ExitCode())
}
