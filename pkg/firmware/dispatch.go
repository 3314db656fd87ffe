package firmware

import (
	"context"

	"github.com/golang/glog"

	"github.com/peardrop/eprog/pkg/hal"
)

// dispatch drains one command frame and runs the selected operation.
// Whatever the outcome - success, failure or abort - the queue and the
// active flag are cleared before returning to idle.
func (c *Core) dispatch(ctx context.Context) {
	c.indicate(hal.StatusBusy)
	defer func() {
		c.queue.Clear()
		c.active.Store(false)
		c.indicate(hal.StatusReady)
	}()

	// Drain the marker, then the command code.
	if _, err := c.queue.Pop(ctx); err != nil {
		return
	}
	cmd, err := c.queue.Pop(ctx)
	if err != nil {
		return
	}

	glog.V(1).Infof("command %q", cmd)
	switch cmd {
	case CmdRead:
		c.doRead(ctx)
	case CmdWrite:
		c.doWrite(ctx)
	case CmdBlank:
		c.doBlank(ctx)
	case CmdIdentify:
		c.doIdentify()
	case CmdSetType:
		c.doSetType(ctx)
	case CmdInitBaud:
		// The link is already up by the time commands flow.
		c.send("Already init")
	default:
		// Unknown commands are ignored without a report.
		glog.V(2).Infof("unknown command %q ignored", cmd)
	}
}
