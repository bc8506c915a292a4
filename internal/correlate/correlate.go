// Package correlate maps pending request ids to completion signals and
// matches inbound frames against them. It is the only mutator of pending
// request bookkeeping for a target; all operations on one Table are
// serialized by its mutex.
package correlate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coderag/mcpconform/jsonrpc"
	"github.com/coderag/mcpconform/transport"
)

var (
	// ErrTimeout indicates no matching response arrived within the deadline.
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrClosed indicates the table was shut down while requests were pending.
	ErrClosed = errors.New("correlation table closed")
	// ErrDuplicateID indicates a register with an id already pending.
	ErrDuplicateID = errors.New("duplicate pending request id")
)

// Outcome is delivered to exactly one waiter per pending request.
type Outcome struct {
	// Frame carries the matched response, or the unparseable line attributed
	// to the request. Zero-valued when Err reports a timeout or shutdown.
	Frame transport.Frame
	Err   error
}

// Waiter is the completion signal for one registered request.
type Waiter struct {
	done chan Outcome
}

// Done yields the outcome. The channel receives exactly one value.
func (w *Waiter) Done() <-chan Outcome { return w.done }

type pending struct {
	id      *jsonrpc.RequestID
	sentAt  time.Time
	timeout time.Duration
	w       *Waiter
}

// maxOutOfBand bounds retention of unmatched inbound traffic.
const maxOutOfBand = 256

// Table tracks the pending requests of a single target.
type Table struct {
	mu        sync.Mutex
	pending   map[string]*pending // RequestID.Key() -> pending
	outOfBand []transport.Frame
	closed    bool
	closeErr  error
}

// NewTable returns an empty correlation table.
func NewTable() *Table {
	return &Table{pending: make(map[string]*pending)}
}

// Register adds a pending request. Ids are compared by exact JSON type and
// value, so registering numeric 1 leaves string "1" free (and vice versa).
func (t *Table) Register(id *jsonrpc.RequestID, sentAt time.Time, timeout time.Duration) (*Waiter, error) {
	if id.IsNil() {
		return nil, fmt.Errorf("register: notification has no id to correlate")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, t.closeError()
	}

	key := id.Key()
	if _, dup := t.pending[key]; dup {
		return nil, fmt.Errorf("register id %s: %w", id, ErrDuplicateID)
	}

	w := &Waiter{done: make(chan Outcome, 1)}
	t.pending[key] = &pending{id: id, sentAt: sentAt, timeout: timeout, w: w}
	return w, nil
}

// Dispatch routes one inbound frame:
//
//   - a response whose id matches a pending request resolves that request;
//   - an unparseable line is attributed to the sole pending request if there
//     is exactly one (the runner never pipelines), preserving its raw bytes;
//   - everything else (unsolicited notifications, requests from the peer,
//     responses with unknown ids) is recorded out-of-band and resolves
//     nothing.
//
// It reports whether the frame resolved a pending request.
func (t *Table) Dispatch(f transport.Frame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f.ParseErr != nil {
		if len(t.pending) == 1 {
			for key, p := range t.pending {
				delete(t.pending, key)
				p.w.done <- Outcome{Frame: f}
				return true
			}
		}
		t.record(f)
		return false
	}

	if f.Msg.Type() == "response" && !f.Msg.ID.IsNil() {
		if p, ok := t.pending[f.Msg.ID.Key()]; ok {
			delete(t.pending, f.Msg.ID.Key())
			p.w.done <- Outcome{Frame: f}
			return true
		}
	}

	t.record(f)
	return false
}

// Cancel withdraws a pending request without signaling its waiter. Used when
// the send itself failed, so no response can ever arrive.
func (t *Table) Cancel(id *jsonrpc.RequestID) bool {
	if id.IsNil() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[id.Key()]; !ok {
		return false
	}
	delete(t.pending, id.Key())
	return true
}

// Expire sweeps pending requests whose deadline has passed and signals each
// waiter with ErrTimeout.
func (t *Table) Expire(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, p := range t.pending {
		if now.After(p.sentAt.Add(p.timeout)) {
			delete(t.pending, key)
			p.w.done <- Outcome{Err: ErrTimeout}
			n++
		}
	}
	return n
}

// FailAll resolves every pending request with err and rejects future
// registrations. Used on run-level abort and peer exit.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.closeErr = err
	for key, p := range t.pending {
		delete(t.pending, key)
		p.w.done <- Outcome{Err: t.closeError()}
	}
}

// OutOfBand returns a snapshot of unmatched inbound frames in arrival order.
func (t *Table) OutOfBand() []transport.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transport.Frame, len(t.outOfBand))
	copy(out, t.outOfBand)
	return out
}

// PendingCount reports how many requests are still awaiting responses.
func (t *Table) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Table) record(f transport.Frame) {
	if len(t.outOfBand) >= maxOutOfBand {
		t.outOfBand = t.outOfBand[1:]
	}
	t.outOfBand = append(t.outOfBand, f)
}

func (t *Table) closeError() error {
	if t.closeErr != nil {
		return t.closeErr
	}
	return ErrClosed
}
