// Package relay is a transparent pass-through between an external caller and
// a target process, recording every chunk for forensic inspection.
//
// Three directional copies run concurrently (caller to target, target to
// caller, target diagnostics to observer) so a stall on one direction never
// blocks another. No JSON parsing, no correlation: the relay exists to
// capture exact bytes when a client and server disagree about framing.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coderag/mcpconform/proc"
)

const defaultChunkSize = 1024

// Relay wires the three copy directions for one target process.
type Relay struct {
	log       *slog.Logger
	chunkSize int

	obsMu sync.Mutex
	obs   io.Writer
}

// Option customizes a Relay.
type Option func(*Relay)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

// WithChunkSize sets the copy buffer size for both data directions.
func WithChunkSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// New builds a Relay emitting observations to obs.
func New(obs io.Writer, opts ...Option) *Relay {
	r := &Relay{
		log:       slog.Default(),
		chunkSize: defaultChunkSize,
		obs:       obs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run spawns the target and relays bytes between in/out and the process
// until the process exits or ctx is canceled. It returns the target's exit
// code.
func (r *Relay) Run(ctx context.Context, cfg proc.ServerConfig, in io.Reader, out io.Writer) (int, error) {
	sessionID := uuid.NewString()
	r.observeLine(fmt.Sprintf("relay session %s: %s", sessionID, strings.Join(cfg.Command, " ")))

	h, err := proc.Start(cfg,
		proc.WithLogger(r.log),
		proc.WithStderrFunc(func(line string) {
			r.observeLine("[stderr] " + line)
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("relay: %w", err)
	}

	var wg sync.WaitGroup

	// caller -> target. Not joined on exit: a read on the caller's input can
	// block past the target's lifetime, and writes after exit fail fast.
	go func() {
		r.copyChunks("caller->target", in, func(chunk []byte) error {
			return h.WriteFrame(chunk)
		})
		_ = h.CloseStdin()
		r.observeLine("caller->target: EOF")
	}()

	// target -> caller
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.copyChunks("target->caller", h.Stdout(), func(chunk []byte) error {
			_, err := out.Write(chunk)
			return err
		})
		r.observeLine("target->caller: EOF")
	}()

	// ctx cancellation walks the shutdown ladder, which unblocks both copies.
	stop := context.AfterFunc(ctx, func() {
		h.Shutdown(2 * time.Second)
	})
	defer stop()

	<-h.Exited()
	wg.Wait()

	code, _ := h.ExitCode()
	r.observeLine(fmt.Sprintf("process exited with code %d", code))
	if ctx.Err() != nil {
		return code, ctx.Err()
	}
	return code, nil
}

// copyChunks moves bytes from src through sink, dumping every chunk to the
// observer. The chunk boundary carries no meaning; only the bytes do.
func (r *Relay) copyChunks(direction string, src io.Reader, sink func([]byte) error) {
	buf := make([]byte, r.chunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			r.observeChunk(direction, chunk)
			if werr := sink(chunk); werr != nil {
				r.log.Debug("relay write failed", "direction", direction, "err", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Debug("relay read failed", "direction", direction, "err", err)
			}
			return
		}
	}
}

// observeChunk emits the timestamped hex-and-printable-ASCII dual rendering
// of one chunk.
func (r *Relay) observeChunk(direction string, chunk []byte) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s: %d bytes\n", time.Now().Format("15:04:05.000"), direction, len(chunk))
	sb.WriteString("  HEX:   " + hexString(chunk) + "\n")
	sb.WriteString("  ASCII: " + asciiString(chunk) + "\n")

	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	_, _ = io.WriteString(r.obs, sb.String())
}

func (r *Relay) observeLine(s string) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	fmt.Fprintf(r.obs, "[%s] %s\n", time.Now().Format("15:04:05.000"), s)
}

func hexString(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", c)
	}
	return sb.String()
}

// asciiString renders printable bytes as-is and everything else as a dot.
func asciiString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 0x20 && c < 0x7f {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
