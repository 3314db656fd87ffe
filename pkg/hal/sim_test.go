package hal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimEPROMErased(t *testing.T) {
	s := NewSimEPROM(64, LinePGM, true)
	for addr := uint16(0); addr < 64; addr++ {
		s.SetAddress(addr)
		require.Equal(t, byte(0xff), s.ReadData())
	}
}

func TestSimEPROMProgramPulse(t *testing.T) {
	s := NewSimEPROM(16, LinePGM, true)
	s.SetLine(LinePGM, false)
	s.SetDataDir(DirOutput)
	s.SetAddress(3)
	s.WriteData(0xa5)

	s.SetLine(LinePGM, true)
	s.SetLine(LinePGM, false)
	require.Equal(t, byte(0xa5), s.ByteAt(3))

	// Programming only clears bits: a second pulse cannot set any.
	s.WriteData(0x5a)
	s.SetLine(LinePGM, true)
	s.SetLine(LinePGM, false)
	require.Equal(t, byte(0x00), s.ByteAt(3))
}

func TestSimEPROMNoCommitWithoutPulse(t *testing.T) {
	s := NewSimEPROM(16, LinePGM, true)
	s.SetLine(LinePGM, false)
	s.SetDataDir(DirOutput)
	s.SetAddress(0)
	s.WriteData(0x00)

	// Toggling an unrelated line must not program.
	s.SetLine(LineCE, false)
	s.SetLine(LineCE, true)
	require.Equal(t, byte(0xff), s.ByteAt(0))

	// Neither does the pulse with the data port in input mode.
	s.SetDataDir(DirInput)
	s.SetLine(LinePGM, true)
	s.SetLine(LinePGM, false)
	require.Equal(t, byte(0xff), s.ByteAt(0))
}

func TestSimEPROMActiveLowPulse(t *testing.T) {
	s := NewSimEPROM(16, LineWE, false)
	s.SetDataDir(DirOutput)
	s.SetAddress(7)
	s.WriteData(0x42)

	s.SetLine(LineWE, false)
	s.SetLine(LineWE, true)
	require.Equal(t, byte(0x42), s.ByteAt(7))
}

func TestSimEPROMLoadAndErase(t *testing.T) {
	s := NewSimEPROM(8, LinePGM, true)
	s.Load([]byte{1, 2, 3})
	require.Equal(t, byte(1), s.ByteAt(0))
	require.Equal(t, byte(3), s.ByteAt(2))
	require.Equal(t, byte(0xff), s.ByteAt(3))

	s.Erase()
	require.Equal(t, byte(0xff), s.ByteAt(0))
}

func TestSimPin(t *testing.T) {
	p := &SimPin{}
	require.False(t, p.Get())
	p.Output()
	p.Set(true)
	require.True(t, p.Get())
	p.Set(false)
	require.False(t, p.Get())
}

func TestLEDIndicator(t *testing.T) {
	green, orange, red := &SimPin{}, &SimPin{}, &SimPin{}
	led := &LEDIndicator{Green: green, Orange: orange, Red: red}

	led.Indicate(StatusReady)
	require.True(t, green.Get())
	require.False(t, orange.Get())

	led.Indicate(StatusBusy)
	require.False(t, green.Get())
	require.True(t, orange.Get())

	// Waiting toggles the red LED for visible progress.
	led.Indicate(StatusWaiting)
	require.True(t, red.Get())
	led.Indicate(StatusWaiting)
	require.False(t, red.Get())
}
