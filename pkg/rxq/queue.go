// Package rxq implements the receive queue shared between the byte
// receiver and the command processor. It is a bounded FIFO with one slot
// permanently reserved to tell full from empty, and it owns the
// occupancy-driven hardware flow-control signal.
//
// See e.g. Aho, Hopcroft & Ullman, 'Data structures and Algorithms' for
// the circular queue.
package rxq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/peardrop/eprog/pkg/hal"
)

var (
	// ErrOverflow indicates a pushed byte was rejected and dropped.
	ErrOverflow = errors.New("receive queue overflow")
	// ErrUnderflow indicates a pop found the queue empty (EmptyFail
	// policy only).
	ErrUnderflow = errors.New("receive queue empty")
)

// FlowControl receives pause/resume requests derived from occupancy.
// Pause true asks the remote side to stop sending.
type FlowControl interface {
	SetPause(bool)
}

// FlowFunc is func type of FlowControl.
type FlowFunc func(bool)

// SetPause implements FlowControl.
func (f FlowFunc) SetPause(pause bool) {
	f(pause)
}

// EmptyPolicy selects the behavior of Pop on an empty queue.
type EmptyPolicy int

const (
	// EmptyBlock waits cooperatively until a byte arrives, signaling
	// visible progress on each retry interval.
	EmptyBlock EmptyPolicy = iota
	// EmptyFail signals an underflow, delays once and returns a zero
	// sentinel with ErrUnderflow.
	EmptyFail
)

// Watermarks are the occupancy thresholds driving the flow signal:
// pause above High, resume below Low. Setting Low >= High selects the
// single-mark behavior with no hysteresis.
type Watermarks struct {
	High int
	Low  int
}

// Config configures a Queue.
type Config struct {
	// Capacity is the buffer size; one slot is reserved, so at most
	// Capacity-1 bytes are held.
	Capacity int
	// Marks are the flow-control thresholds.
	Marks Watermarks
	// Empty selects the Pop policy.
	Empty EmptyPolicy
	// RetryDelay bounds the delay after overflow/underflow and paces
	// the wait loop of EmptyBlock.
	RetryDelay time.Duration
}

// Defaults matching the board firmware.
const (
	DefaultCapacity   = 1024
	DefaultRetryDelay = 100 * time.Millisecond
)

// DefaultMarks returns the hysteresis watermarks for a capacity.
func DefaultMarks(capacity int) Watermarks {
	return Watermarks{High: capacity - 32, Low: 32}
}

// Queue is a single-producer/single-consumer byte FIFO. Push is called
// only from the receiver context, Pop only from the command context;
// every head/tail mutation happens inside the queue's critical section.
type Queue struct {
	cfg  Config
	flow FlowControl
	ind  hal.Indicator

	mu     sync.Mutex
	buf    []byte
	head   int
	tail   int
	paused bool
}

// New creates a Queue. flow and ind may be nil.
func New(cfg Config, flow FlowControl, ind hal.Indicator) *Queue {
	if cfg.Capacity <= 1 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Marks == (Watermarks{}) {
		cfg.Marks = DefaultMarks(cfg.Capacity)
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	q := &Queue{
		cfg:  cfg,
		flow: flow,
		ind:  ind,
		buf:  make([]byte, cfg.Capacity),
		head: 0,
		tail: cfg.Capacity - 1,
	}
	return q
}

// Capacity returns the configured capacity.
func (q *Queue) Capacity() int {
	return q.cfg.Capacity
}

// next is the following position in the circular buffer.
func (q *Queue) next(i int) int {
	if i == q.cfg.Capacity-1 {
		return 0
	}
	return i + 1
}

// occupancy under q.mu.
func (q *Queue) sizeLocked() int {
	c := q.cfg.Capacity
	return (q.tail - q.head + 1 + c) % c
}

func (q *Queue) emptyLocked() bool {
	return q.next(q.tail) == q.head
}

// updateFlowLocked drives the flow signal from occupancy. The signal is
// edge triggered: FlowControl is only called on transitions.
func (q *Queue) updateFlowLocked(s int) {
	if q.flow == nil {
		return
	}
	m := q.cfg.Marks
	if m.Low >= m.High {
		q.setPauseLocked(s > m.High)
		return
	}
	if s > m.High {
		q.setPauseLocked(true)
	} else if s < m.Low {
		q.setPauseLocked(false)
	}
}

func (q *Queue) setPauseLocked(pause bool) {
	if pause != q.paused {
		q.paused = pause
		q.flow.SetPause(pause)
	}
}

func (q *Queue) indicate(s hal.Status) {
	if q.ind != nil {
		q.ind.Indicate(s)
	}
}

// Push appends a byte. Producer-only. A full queue rejects the byte:
// the producer must never block waiting for space.
func (q *Queue) Push(b byte) error {
	q.mu.Lock()
	s := q.sizeLocked()
	q.updateFlowLocked(s)
	if s >= q.cfg.Capacity-1 {
		q.mu.Unlock()
		glog.Warningf("rxq: overflow, byte 0x%02x dropped", b)
		q.indicate(hal.StatusOverflow)
		time.Sleep(q.cfg.RetryDelay)
		return ErrOverflow
	}
	q.tail = q.next(q.tail)
	q.buf[q.tail] = b
	q.updateFlowLocked(q.sizeLocked())
	q.mu.Unlock()
	return nil
}

// Pop removes and returns the oldest byte, honoring the configured
// EmptyPolicy when the queue is empty.
func (q *Queue) Pop(ctx context.Context) (byte, error) {
	for {
		q.mu.Lock()
		if !q.emptyLocked() {
			b := q.buf[q.head]
			q.head = q.next(q.head)
			q.updateFlowLocked(q.sizeLocked())
			q.mu.Unlock()
			return b, nil
		}
		q.mu.Unlock()

		if q.cfg.Empty == EmptyFail {
			q.indicate(hal.StatusUnderflow)
			sleepCtx(ctx, q.cfg.RetryDelay)
			return 0, ErrUnderflow
		}
		q.indicate(hal.StatusWaiting)
		if err := sleepCtx(ctx, q.cfg.RetryDelay); err != nil {
			return 0, err
		}
	}
}

// Peek returns the oldest byte without removing it. Returns false when
// empty.
func (q *Queue) Peek() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.emptyLocked() {
		return 0, false
	}
	return q.buf[q.head], true
}

// Size returns the occupancy. This is the single source of truth for
// occupancy-driven flow signaling: querying it also refreshes the
// signal.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.sizeLocked()
	q.updateFlowLocked(s)
	return s
}

// Empty reports whether the queue holds no bytes.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emptyLocked()
}

// Paused reports the current state of the flow signal.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Clear resets the queue: indices home, contents zeroed, flow signal
// refreshed. Called after each completed or aborted command.
func (q *Queue) Clear() {
	q.mu.Lock()
	for i := range q.buf {
		q.buf[i] = 0
	}
	q.head = 0
	q.tail = q.cfg.Capacity - 1
	q.updateFlowLocked(0)
	q.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
