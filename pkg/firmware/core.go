// Package firmware implements the programmer's command processor: a byte
// receiver feeding the receive queue, a two-byte command framer, and a
// cooperative dispatcher running the EPROM operations against the active
// device profile.
package firmware

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/peardrop/eprog/pkg/device"
	"github.com/peardrop/eprog/pkg/hal"
	"github.com/peardrop/eprog/pkg/rxq"
)

// FrameMarker starts every command frame.
const FrameMarker = '$'

// Command codes, the second byte of a frame.
const (
	CmdRead     = '1' // read from the EPROM
	CmdWrite    = '2' // program the EPROM
	CmdBlank    = '3' // check EPROM is blank (all FF)
	CmdIdentify = '4' // get the ID of the device
	CmdSetType  = '5' // set the device type
	CmdInitBaud = 'U' // init the baud rate
)

// Config configures a Core.
type Config struct {
	// Profile is the device family active at startup. Defaults to 2716.
	Profile *device.Profile
	// Queue configures the receive queue.
	Queue rxq.Config
	// BaudRate, when non-zero, is echoed once at startup after the
	// serial collaborator finished autobaud.
	BaudRate int
	// Tick paces the idle loop. Defaults to 10ms.
	Tick time.Duration
}

// Core ties the receive queue, the framer and the dispatcher together.
// OnByte is the receiver-context entry point; Run is the main-loop
// context. The queue is the only state shared between the two.
type Core struct {
	cfg     Config
	queue   *rxq.Queue
	bus     hal.Bus
	tx      io.Writer
	ind     hal.Indicator
	profile *device.Profile

	active atomic.Bool
	wakeCh chan struct{}
}

// New creates a Core driving bus and emitting responses to tx. flow and
// ind may be nil.
func New(cfg Config, bus hal.Bus, tx io.Writer, flow rxq.FlowControl, ind hal.Indicator) *Core {
	if cfg.Profile == nil {
		cfg.Profile, _ = device.Lookup(device.Type2716)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 10 * time.Millisecond
	}
	return &Core{
		cfg:     cfg,
		queue:   rxq.New(cfg.Queue, flow, ind),
		bus:     bus,
		tx:      tx,
		ind:     ind,
		profile: cfg.Profile,
		wakeCh:  make(chan struct{}, 1),
	}
}

// Queue exposes the receive queue.
func (c *Core) Queue() *rxq.Queue {
	return c.queue
}

// Profile returns the active device profile.
func (c *Core) Profile() *device.Profile {
	return c.profile
}

// OnByte handles one received byte. It runs in the receiver context:
// push into the queue, then let the framer inspect the queue state.
func (c *Core) OnByte(b byte) {
	if err := c.queue.Push(b); err != nil {
		glog.V(2).Infof("rx byte 0x%02x: %v", b, err)
	}
	c.scanFrame()
}

// scanFrame raises the active flag once a two-byte frame sits at the
// head of the queue. It never drains the queue, and re-raising an
// already-raised flag is a no-op.
func (c *Core) scanFrame() {
	b, ok := c.queue.Peek()
	if !ok || b != FrameMarker || c.queue.Size() <= 1 {
		return
	}
	if c.active.CompareAndSwap(false, true) {
		select {
		case c.wakeCh <- struct{}{}:
		default:
		}
	}
}

// Active reports whether a command frame is pending or executing.
func (c *Core) Active() bool {
	return c.active.Load()
}

// Abort cancels the running command. Operations observe the cleared
// flag at the top of their next address iteration; a hardware pulse in
// progress always completes first.
func (c *Core) Abort() {
	c.active.Store(false)
}

// Run implements framework.Runnable: the cooperative main loop cycling
// between idle and command execution until the context ends.
func (c *Core) Run(ctx context.Context) error {
	device.Apply(c.bus, c.profile.SocketSelect)
	device.Apply(c.bus, c.profile.Idle)
	c.bus.SetDataDir(hal.DirInput)
	if c.cfg.BaudRate > 0 {
		c.sendf("%d\n", c.cfg.BaudRate)
	}
	c.indicate(hal.StatusReady)

	tick := time.NewTicker(c.cfg.Tick)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wakeCh:
		case <-tick.C:
		}
		if c.active.Load() {
			c.dispatch(ctx)
		}
	}
}

func (c *Core) indicate(s hal.Status) {
	if c.ind != nil {
		c.ind.Indicate(s)
	}
}

func (c *Core) send(s string) {
	if _, err := io.WriteString(c.tx, s); err != nil {
		glog.Errorf("tx: %v", err)
	}
}

func (c *Core) sendf(format string, args ...interface{}) {
	c.send(fmt.Sprintf(format, args...))
}
