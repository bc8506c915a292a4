package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// collectWriter records every frame handed to WriteFrame.
type collectWriter struct {
	mu     sync.Mutex
	frames [][]byte
}

func (w *collectWriter) WriteFrame(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames = append(w.frames, append([]byte(nil), b...))
	return nil
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConnSkipsBlankLines(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	c := New("target", &collectWriter{}, pr)

	go func() {
		pw.Write([]byte("{\"jsonrpc\":\"2.0\",\"result\":{},\"id\":1}\n"))
		pw.Write([]byte("\n\r\n\n"))
		pw.Write([]byte("{\"jsonrpc\":\"2.0\",\"result\":{},\"id\":2}\n"))
		pw.Close()
	}()

	ctx := testCtx(t)
	first, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("first receive: %v", err)
	}
	second, err := c.Receive(ctx)
	if err != nil {
		t.Fatalf("second receive: %v", err)
	}
	if first.Msg == nil || second.Msg == nil {
		t.Fatal("both frames should decode")
	}
	if first.Msg.ID.String() != "1" || second.Msg.ID.String() != "2" {
		t.Errorf("got ids %s, %s; want 1, 2", first.Msg.ID, second.Msg.ID)
	}

	if _, err := c.Receive(ctx); !errors.Is(err, ErrPeerClosed) {
		t.Errorf("after EOF: got %v, want ErrPeerClosed", err)
	}
}

func TestConnKeepsRawBytesOnParseFailure(t *testing.T) {
	pr, pw := io.Pipe()
	c := New("target", &collectWriter{}, pr)

	line := []byte("this is not json\n")
	go func() {
		pw.Write(line)
		pw.Close()
	}()

	f, err := c.Receive(testCtx(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if f.ParseErr == nil {
		t.Fatal("expected a parse error")
	}
	if f.Msg != nil {
		t.Error("Msg should be nil on parse failure")
	}
	if !bytes.Equal(f.Raw, line) {
		t.Errorf("Raw = %q, want the exact bytes read %q", f.Raw, line)
	}
}

func TestConnTrimsCRLF(t *testing.T) {
	pr, pw := io.Pipe()
	c := New("target", &collectWriter{}, pr)

	go func() {
		pw.Write([]byte("{\"jsonrpc\":\"2.0\",\"result\":{},\"id\":1}\r\n"))
		pw.Close()
	}()

	f, err := c.Receive(testCtx(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if f.ParseErr != nil {
		t.Fatalf("CRLF line should decode: %v", f.ParseErr)
	}
	if !bytes.HasSuffix(f.Raw, []byte("\r\n")) {
		t.Error("Raw should keep the original CRLF terminator")
	}
}

func TestConnDeliversPartialFinalLine(t *testing.T) {
	pr, pw := io.Pipe()
	c := New("target", &collectWriter{}, pr)

	go func() {
		pw.Write([]byte(`{"jsonrpc":"2.0","result":{},"id":1}`))
		pw.Close()
	}()

	f, err := c.Receive(testCtx(t))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if f.ParseErr != nil {
		t.Fatalf("unterminated final line should still decode: %v", f.ParseErr)
	}
}

func TestSendFramesWithSingleNewline(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close(); pr.Close() })
	cw := &collectWriter{}
	c := New("target", cw, pr)

	if err := c.Send(map[string]any{"jsonrpc": "2.0", "method": "ping", "id": 1}); err != nil {
		t.Fatalf("send: %v", err)
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if len(cw.frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(cw.frames))
	}
	frame := cw.frames[0]
	if !bytes.HasSuffix(frame, []byte("\n")) {
		t.Error("frame must end with a newline")
	}
	if bytes.Count(frame, []byte("\n")) != 1 {
		t.Errorf("frame must contain exactly one newline: %q", frame)
	}
	if bytes.Contains(frame[:len(frame)-1], []byte(" ")) {
		t.Errorf("frame should be compact JSON: %q", frame)
	}
}

func TestSendRawPassesBytesThrough(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close(); pr.Close() })
	cw := &collectWriter{}
	c := New("target", cw, pr)

	raw := []byte("{not json at all\n")
	if err := c.SendRaw(raw); err != nil {
		t.Fatalf("send raw: %v", err)
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if len(cw.frames) != 1 || !bytes.Equal(cw.frames[0], raw) {
		t.Errorf("SendRaw must not alter bytes: %q", cw.frames)
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close(); pr.Close() })
	c := New("target", &collectWriter{}, pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want context.DeadlineExceeded", err)
	}
}
