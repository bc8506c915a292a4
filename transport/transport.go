// Package transport frames and deframes newline-delimited JSON-RPC messages
// over a target's byte streams.
//
// Characteristics
//
//	Framing      : one message per line, boundary at the first newline byte
//	Blank lines  : skipped, never surfaced as messages or errors
//	Bad JSON     : surfaced as a Frame carrying the exact raw bytes read
//	Timeouts     : caller-supplied context bounds every blocking receive
//
// A dedicated reader goroutine owns the input buffer exclusively and publishes
// completed frames on a channel, so no two goroutines ever share buffer state.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/coderag/mcpconform/jsonrpc"
)

// ErrPeerClosed indicates the peer's output stream reached EOF.
var ErrPeerClosed = errors.New("peer output stream closed")

// FrameWriter delivers one already-framed message to the peer without
// interleaving it with other writers. *proc.Handle satisfies this.
type FrameWriter interface {
	WriteFrame([]byte) error
}

// FrameWriterFunc adapts a function to the FrameWriter interface.
type FrameWriterFunc func([]byte) error

func (f FrameWriterFunc) WriteFrame(b []byte) error { return f(b) }

// Frame is one newline-terminated unit read from the peer. Raw always holds
// the exact bytes read, including the terminating newline when one was seen,
// whether or not they decoded as JSON.
type Frame struct {
	Raw []byte
	// Msg is the decoded message; nil when ParseErr is set.
	Msg *jsonrpc.AnyMessage
	// ParseErr records why the line failed to decode as a JSON-RPC message.
	ParseErr error
	// At is the instant the frame's terminating newline (or EOF) was observed.
	At time.Time
}

// Conn is a line-framed JSON-RPC connection to one peer.
type Conn struct {
	name   string
	fw     FrameWriter
	log    *slog.Logger
	frames chan Frame
}

// Option customizes a Conn.
type Option func(*Conn)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// New starts a Conn reading frames from r and writing through fw.
// The reader goroutine runs until EOF or a read error on r.
func New(name string, fw FrameWriter, r io.Reader, opts ...Option) *Conn {
	c := &Conn{
		name:   name,
		fw:     fw,
		log:    slog.Default(),
		frames: make(chan Frame, 16),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop(r)
	return c
}

// Send serializes msg to compact JSON terminated by exactly one newline and
// writes it as a single frame.
func (c *Conn) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.fw.WriteFrame(append(b, '\n'))
}

// SendRaw writes pre-encoded bytes as-is. Used to probe how targets handle
// deliberately malformed or unusually framed input.
func (c *Conn) SendRaw(b []byte) error {
	return c.fw.WriteFrame(b)
}

// Receive blocks until the next frame arrives, the context is done, or the
// peer closes its output. Context expiry is the transport's only timeout
// mechanism; callers bound each receive with context.WithTimeout.
func (c *Conn) Receive(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return Frame{}, ErrPeerClosed
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Frames exposes the inbound frame channel. It is closed when the peer's
// output stream ends.
func (c *Conn) Frames() <-chan Frame { return c.frames }

func (c *Conn) readLoop(r io.Reader) {
	defer close(c.frames)

	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadBytes('\n')
		at := time.Now()

		if len(raw) > 0 {
			if f, ok := c.deframe(raw, at); ok {
				c.frames <- f
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.log.Debug("read loop ended", "target", c.name, "err", err)
			}
			return
		}
	}
}

// deframe decodes one raw line. Blank lines (consecutive newlines, stray
// CRLF) yield no frame at all.
func (c *Conn) deframe(raw []byte, at time.Time) (Frame, bool) {
	content := bytes.TrimRight(raw, "\r\n")
	if len(content) == 0 {
		c.log.Debug("skipping blank line", "target", c.name)
		return Frame{}, false
	}

	f := Frame{Raw: raw, At: at}
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(content, &msg); err != nil {
		f.ParseErr = err
		c.log.Debug("unparseable frame", "target", c.name, "err", err, "bytes", len(raw))
		return f, true
	}
	f.Msg = &msg
	return f, true
}
