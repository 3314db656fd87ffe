// Package hal defines the narrow hardware interfaces the programmer core
// drives: GPIO pins, the device bus, and status indicators. Real targets
// implement these over their port registers; the package ships an
// in-memory EPROM simulator for tests and bench work.
package hal

// Dir is the direction of a pin or a bus.
type Dir int

// Pin/bus directions.
const (
	DirInput Dir = iota
	DirOutput
)

// Line identifies a control line role on the programmer bus. The meaning
// of each role depends on the device family wired into the socket.
type Line int

// Control line roles.
const (
	// LineCE is chip enable/select (CS_ on 2716, E_ on 2732).
	LineCE Line = iota
	// LineWE is write enable, switching VPP onto the device.
	LineWE
	// LinePGM is the program pulse line (PD/PGM on 2716, PGM_ on 2532).
	LinePGM
	// LineSelA and LineSelB drive the socket relays selecting the
	// pinout for the active family.
	LineSelA
	LineSelB

	NumLines
)

// Pin is a single GPIO line with capability set
// {configure-direction, read, write}.
type Pin interface {
	Input()
	Output()
	Set(level bool)
	Get() bool
}

// Bus is the device-facing bus of the programmer: address lines, a
// bidirectional data port and the control lines.
type Bus interface {
	// SetAddress latches addr onto the address lines.
	SetAddress(addr uint16)
	// SetDataDir switches the data port between reading from and
	// driving the device.
	SetDataDir(Dir)
	// WriteData drives b onto the data port. Only meaningful with the
	// port in DirOutput.
	WriteData(b byte)
	// ReadData samples the data port.
	ReadData() byte
	// SetLine drives a control line to a physical level (true = high).
	SetLine(l Line, level bool)
}
