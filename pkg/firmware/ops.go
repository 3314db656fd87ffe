package firmware

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/peardrop/eprog/pkg/device"
	"github.com/peardrop/eprog/pkg/hal"
)

// charToHexDigit converts an ASCII hex character. Handles upper and
// lower case.
func charToHexDigit(c byte) byte {
	if c >= 'a' {
		return c - 'a' + 10
	}
	if c >= 'A' {
		return c - 'A' + 10
	}
	return c - '0'
}

// setupAddress latches the address and waits Tcss.
func (c *Core) setupAddress(addr uint16) {
	c.bus.SetAddress(addr)
	time.Sleep(c.profile.AddressSettle)
}

// readPort samples one byte from the device with the read enables
// asserted.
func (c *Core) readPort() byte {
	c.bus.SetDataDir(hal.DirInput)
	time.Sleep(c.profile.ReadSettle)
	device.Apply(c.bus, c.profile.ReadSetup)
	time.Sleep(c.profile.ReadSettle)
	return c.bus.ReadData()
}

// writePort drives data and executes the programming pulse. The pulse,
// once started, always completes: electrical timing cannot be cancelled
// half way.
func (c *Core) writePort(data byte) {
	p := c.profile
	c.bus.WriteData(data)
	time.Sleep(p.DataSetup)
	c.bus.SetLine(p.PulseLine, p.PulseActiveHigh)
	time.Sleep(p.PulseWidth)
	c.bus.SetLine(p.PulseLine, !p.PulseActiveHigh)
	time.Sleep(p.PulseRecover)
}

// quiesce restores the control lines to the disabled pattern.
func (c *Core) quiesce() {
	device.Apply(c.bus, c.profile.Idle)
}

// doRead dumps the whole address range as hex rows of 16 bytes.
func (c *Core) doRead(ctx context.Context) {
	device.Apply(c.bus, c.profile.ReadSetup)
	col := 0
	for addr := uint16(0); addr < c.profile.Size; addr++ {
		if !c.active.Load() || ctx.Err() != nil {
			c.send("Read aborted\n")
			c.quiesce()
			return
		}
		c.setupAddress(addr)
		data := c.readPort()

		if col == 0 {
			c.sendf("%04x: ", addr)
		}
		c.sendf("%02x", data)
		if col == 15 {
			col = 0
			c.send("\n")
		} else {
			c.send(" ")
			col++
		}
	}
	c.quiesce()
}

// doBlank verifies every cell reads as the erased value, stopping at the
// first that does not.
func (c *Core) doBlank(ctx context.Context) {
	device.Apply(c.bus, c.profile.ReadSetup)
	ok := true
	for addr := uint16(0); addr < c.profile.Size; addr++ {
		if !c.active.Load() || ctx.Err() != nil {
			c.send("Check aborted\n")
			c.quiesce()
			return
		}
		c.setupAddress(addr)
		data := c.readPort()
		if data != 0xff {
			c.sendf("Erase check fail at address 0x%04x = 0x%02x\n", addr, data)
			ok = false
			break
		}
	}
	c.quiesce()
	if ok {
		c.send("OK")
	}
}

// doWrite programs the device from the hex payload trailing the frame:
// two ASCII characters per address. Any abort mid-loop must leave the
// control and pulse lines disabled - a pulse line left asserted risks
// damaging the device.
func (c *Core) doWrite(ctx context.Context) {
	c.bus.SetDataDir(hal.DirOutput)
	device.Apply(c.bus, c.profile.WriteSetup)

	abort := func() {
		c.send("Write aborted\n")
		c.quiesce()
		c.bus.SetDataDir(hal.DirInput)
	}

	for addr := uint16(0); addr < c.profile.Size; addr++ {
		if !c.active.Load() || ctx.Err() != nil {
			abort()
			return
		}

		// Two ascii chars from the queue make one data byte.
		hi, err := c.queue.Pop(ctx)
		if err != nil {
			abort()
			return
		}
		lo, err := c.queue.Pop(ctx)
		if err != nil {
			abort()
			return
		}
		data := charToHexDigit(hi)<<4 | charToHexDigit(lo)

		c.setupAddress(addr)
		c.writePort(data)
	}

	c.quiesce()
	c.bus.SetDataDir(hal.DirInput)
	c.send("OK")
}

// doIdentify reports the active profile's identity string.
func (c *Core) doIdentify() {
	c.send(c.profile.Name)
}

// doSetType switches the active profile and routes the socket relays.
// An unknown family code leaves the profile unchanged.
func (c *Core) doSetType(ctx context.Context) {
	b, err := c.queue.Pop(ctx)
	if err != nil {
		return
	}
	p, ok := device.Lookup(device.Type(int8(b)))
	if !ok {
		glog.V(1).Infof("unknown device type %d", b)
		return
	}
	c.profile = p
	device.Apply(c.bus, p.SocketSelect)
	device.Apply(c.bus, p.Idle)
	glog.V(1).Infof("device type set to %s", p.Name)
}
