// Package device holds the per-chip-family parameters of the programmer.
// One profile describes everything an operation needs to drive a family:
// address range, control-line patterns, programming pulse and timing. The
// operations themselves never hard-code family constants.
package device

import (
	"time"

	"github.com/peardrop/eprog/pkg/hal"
)

// Type enumerates the supported chip families. The values double as the
// wire codes accepted by the set-type command.
type Type int8

// Chip families.
const (
	Type2716 Type = 0
	Type2732 Type = 1
	Type2532 Type = 2
	Type2708 Type = 3
)

// LineLevel is one control line driven to a physical level.
type LineLevel struct {
	Line  hal.Line
	Level bool
}

// Profile is the parameter set distinguishing one chip family.
type Profile struct {
	Type Type
	// Name is the identity string reported by the identify command.
	Name string
	// Size is the addressable range in bytes.
	Size uint16

	// ReadSetup is asserted before a read or blank-check scan,
	// WriteSetup before a programming scan, Idle restores the lines to
	// the disabled state. SocketSelect drives the socket relays routing
	// the family's pinout.
	ReadSetup    []LineLevel
	WriteSetup   []LineLevel
	Idle         []LineLevel
	SocketSelect []LineLevel

	// Programming pulse: PulseLine held at PulseActiveHigh's level for
	// PulseWidth commits one byte.
	PulseLine       hal.Line
	PulseActiveHigh bool
	PulseWidth      time.Duration

	// AddressSettle follows an address latch (Tcss), ReadSettle follows
	// asserting the read enables, DataSetup precedes the pulse and
	// PulseRecover follows its release.
	AddressSettle time.Duration
	ReadSettle    time.Duration
	DataSetup     time.Duration
	PulseRecover  time.Duration
}

// Apply drives a line pattern onto the bus.
func Apply(bus hal.Bus, pattern []LineLevel) {
	for _, ll := range pattern {
		bus.SetLine(ll.Line, ll.Level)
	}
}

var profiles = []*Profile{
	{
		Type: Type2716,
		Name: "2716",
		Size: 2048,
		// CS_ selects the chip, PD/PGM doubles as the program pulse.
		ReadSetup:    []LineLevel{{hal.LineCE, false}, {hal.LinePGM, false}},
		WriteSetup:   []LineLevel{{hal.LineCE, true}, {hal.LineWE, false}, {hal.LinePGM, false}},
		Idle:         []LineLevel{{hal.LineCE, true}, {hal.LineWE, true}, {hal.LinePGM, false}},
		SocketSelect: []LineLevel{{hal.LineSelA, false}, {hal.LineSelB, false}},

		PulseLine:       hal.LinePGM,
		PulseActiveHigh: true,
		PulseWidth:      50 * time.Millisecond,

		AddressSettle: 10 * time.Microsecond,
		ReadSettle:    time.Microsecond,
		DataSetup:     10 * time.Microsecond,
		PulseRecover:  2 * time.Microsecond,
	},
	{
		Type: Type2732,
		Name: "2732",
		Size: 4096,
		// G_/VPP on the CE role, E_ on the PGM role; VPP is pulsed
		// through the WE role and rests high until writePort pulses it.
		ReadSetup:    []LineLevel{{hal.LineCE, false}, {hal.LinePGM, false}},
		WriteSetup:   []LineLevel{{hal.LineCE, false}, {hal.LinePGM, false}},
		Idle:         []LineLevel{{hal.LineCE, true}, {hal.LineWE, true}, {hal.LinePGM, true}},
		SocketSelect: []LineLevel{{hal.LineSelA, true}, {hal.LineSelB, false}},

		PulseLine:       hal.LineWE,
		PulseActiveHigh: false,
		PulseWidth:      50 * time.Millisecond,

		AddressSettle: 10 * time.Microsecond,
		ReadSettle:    time.Microsecond,
		DataSetup:     10 * time.Microsecond,
		PulseRecover:  2 * time.Microsecond,
	},
	{
		Type: Type2532,
		Name: "2532",
		Size: 4096,
		// PD/PGM_ on the CE role, pulsed low to program.
		ReadSetup:    []LineLevel{{hal.LineCE, false}},
		WriteSetup:   []LineLevel{{hal.LineWE, false}},
		Idle:         []LineLevel{{hal.LineCE, true}, {hal.LineWE, true}},
		SocketSelect: []LineLevel{{hal.LineSelA, false}, {hal.LineSelB, true}},

		PulseLine:       hal.LineCE,
		PulseActiveHigh: false,
		PulseWidth:      50 * time.Millisecond,

		AddressSettle: 10 * time.Microsecond,
		ReadSettle:    time.Microsecond,
		DataSetup:     10 * time.Microsecond,
		PulseRecover:  2 * time.Microsecond,
	},
	{
		Type: Type2708,
		Name: "2708",
		Size: 1024,
		// Single-socket board, no relays.
		ReadSetup:  []LineLevel{{hal.LineCE, false}, {hal.LineWE, true}, {hal.LinePGM, true}},
		WriteSetup: []LineLevel{{hal.LineCE, false}, {hal.LineWE, false}, {hal.LinePGM, true}},
		Idle:       []LineLevel{{hal.LineCE, true}, {hal.LineWE, true}, {hal.LinePGM, true}},

		PulseLine:       hal.LinePGM,
		PulseActiveHigh: false,
		PulseWidth:      time.Millisecond,

		AddressSettle: 10 * time.Microsecond,
		ReadSettle:    time.Microsecond,
		DataSetup:     10 * time.Microsecond,
		PulseRecover:  time.Microsecond,
	},
}

// Lookup finds the profile for a family.
func Lookup(t Type) (*Profile, bool) {
	for _, p := range profiles {
		if p.Type == t {
			return p, true
		}
	}
	return nil, false
}

// ByName finds the profile with the given identity string.
func ByName(name string) (*Profile, bool) {
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Profiles lists all known profiles.
func Profiles() []*Profile {
	return profiles
}
