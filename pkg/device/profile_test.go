package device

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peardrop/eprog/pkg/hal"
)

func TestLookup(t *testing.T) {
	cases := []struct {
		typ  Type
		name string
		size uint16
	}{
		{Type2716, "2716", 2048},
		{Type2732, "2732", 4096},
		{Type2532, "2532", 4096},
		{Type2708, "2708", 1024},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, ok := Lookup(tc.typ)
			require.True(t, ok)
			require.Equal(t, tc.name, p.Name)
			require.Equal(t, tc.size, p.Size)
			require.NotZero(t, p.PulseWidth)
		})
	}

	_, ok := Lookup(Type(9))
	require.False(t, ok)
}

func TestByName(t *testing.T) {
	p, ok := ByName("2732")
	require.True(t, ok)
	require.Equal(t, Type2732, p.Type)

	_, ok = ByName("2764")
	require.False(t, ok)
}

func TestApply(t *testing.T) {
	bus := hal.NewSimEPROM(16, hal.LinePGM, true)
	p, _ := Lookup(Type2716)

	Apply(bus, p.ReadSetup)
	require.False(t, bus.Line(hal.LineCE))
	require.False(t, bus.Line(hal.LinePGM))

	Apply(bus, p.Idle)
	require.True(t, bus.Line(hal.LineCE))
	require.True(t, bus.Line(hal.LineWE))
	require.False(t, bus.Line(hal.LinePGM))
}

func TestWriteSetupLeavesPulseLineInactive(t *testing.T) {
	// The pulse line belongs to writePort alone: a setup pattern driving
	// it to the active level fires a spurious commit at address 0.
	for _, p := range Profiles() {
		t.Run(p.Name, func(t *testing.T) {
			for _, ll := range p.WriteSetup {
				if ll.Line == p.PulseLine {
					require.Equal(t, !p.PulseActiveHigh, ll.Level,
						"write setup must not assert the pulse line")
				}
			}
		})
	}
}

func TestSocketSelect(t *testing.T) {
	bus := hal.NewSimEPROM(16, hal.LinePGM, true)
	p, _ := Lookup(Type2532)
	Apply(bus, p.SocketSelect)
	require.False(t, bus.Line(hal.LineSelA))
	require.True(t, bus.Line(hal.LineSelB))
}
