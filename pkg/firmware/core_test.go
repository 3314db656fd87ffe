package firmware

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peardrop/eprog/pkg/device"
	"github.com/peardrop/eprog/pkg/hal"
	"github.com/peardrop/eprog/pkg/rxq"
)

// testProfile is a tiny fast family so tests exercise full scans
// without real programming pulses.
func testProfile(size uint16) *device.Profile {
	return &device.Profile{
		Type:            device.Type(42),
		Name:            "testrom",
		Size:            size,
		ReadSetup:       []device.LineLevel{{Line: hal.LineCE, Level: false}},
		WriteSetup:      []device.LineLevel{{Line: hal.LineCE, Level: false}, {Line: hal.LineWE, Level: false}},
		Idle:            []device.LineLevel{{Line: hal.LineCE, Level: true}, {Line: hal.LineWE, Level: true}, {Line: hal.LinePGM, Level: false}},
		PulseLine:       hal.LinePGM,
		PulseActiveHigh: true,
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type coreFixture struct {
	t    *testing.T
	core *Core
	bus  *hal.SimEPROM
	out  *syncBuffer
	ind  *indRecorder
}

type indRecorder struct {
	mu       sync.Mutex
	statuses []hal.Status
}

func (r *indRecorder) Indicate(s hal.Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *indRecorder) all() []hal.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]hal.Status(nil), r.statuses...)
}

func newFixture(t *testing.T, p *device.Profile) *coreFixture {
	return newFixtureWith(t, p, rxq.EmptyFail)
}

func newFixtureWith(t *testing.T, p *device.Profile, policy rxq.EmptyPolicy) *coreFixture {
	f := &coreFixture{
		t:   t,
		bus: hal.NewSimEPROM(int(p.Size), p.PulseLine, p.PulseActiveHigh),
		out: &syncBuffer{},
		ind: &indRecorder{},
	}
	cfg := Config{
		Profile: p,
		Queue: rxq.Config{
			Capacity:   16384,
			Empty:      policy,
			RetryDelay: time.Millisecond,
		},
	}
	f.core = New(cfg, f.bus, f.out, nil, f.ind)
	// Match the state Run establishes before dispatching.
	device.Apply(f.bus, p.Idle)
	f.bus.SetDataDir(hal.DirInput)
	return f
}

func (f *coreFixture) inject(s string) *coreFixture {
	for i := 0; i < len(s); i++ {
		f.core.OnByte(s[i])
	}
	return f
}

func (f *coreFixture) dispatch() *coreFixture {
	require.True(f.t, f.core.Active(), "no command frame pending")
	f.core.dispatch(context.Background())
	return f
}

func (f *coreFixture) expectOutput(expected string) *coreFixture {
	require.Equal(f.t, expected, f.out.String())
	return f
}

func TestFramerRaisesOnFrame(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$")
	require.False(t, f.core.Active(), "marker alone is not a frame")
	f.inject("3")
	require.True(t, f.core.Active())
}

func TestFramerIdempotent(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$3")
	require.True(t, f.core.Active())
	require.Len(t, f.core.wakeCh, 1)

	// Re-injecting while the frame is pending must not wake twice.
	f.inject("$3")
	require.True(t, f.core.Active())
	require.Len(t, f.core.wakeCh, 1)
}

func TestFramerIgnoresNonMarker(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("xyz")
	require.False(t, f.core.Active())
}

func TestUnknownCommandIsNoOp(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$z").dispatch().expectOutput("")
	require.False(t, f.core.Active())
	require.True(t, f.core.Queue().Empty())
}

func TestDispatchClearsQueue(t *testing.T) {
	f := newFixture(t, testProfile(8))
	// Trailing garbage beyond the frame is discarded with the frame.
	f.inject("$4junk").dispatch()
	require.True(t, f.core.Queue().Empty())
	require.False(t, f.core.Active())
}

func TestDispatchIndicatesBusyThenReady(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$4").dispatch()
	statuses := f.ind.all()
	require.Equal(t, []hal.Status{hal.StatusBusy, hal.StatusReady}, statuses)
}

func TestIdentify(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$4").dispatch().expectOutput("testrom")
}

func TestInitBaudWhileRunning(t *testing.T) {
	f := newFixture(t, testProfile(8))
	f.inject("$U").dispatch().expectOutput("Already init")
}

func TestSetDeviceType(t *testing.T) {
	p, _ := device.Lookup(device.Type2716)
	f := newFixture(t, p)

	f.inject("$5").inject(string([]byte{byte(device.Type2732)})).dispatch()
	require.Equal(t, "2732", f.core.Profile().Name)

	// Socket relays routed for the new family.
	require.True(t, f.bus.Line(hal.LineSelA))
	require.False(t, f.bus.Line(hal.LineSelB))

	f.inject("$4").dispatch().expectOutput("2732")
}

func TestSetDeviceTypeUnknownKeepsProfile(t *testing.T) {
	p, _ := device.Lookup(device.Type2716)
	f := newFixture(t, p)
	f.inject("$5").inject(string([]byte{9})).dispatch()
	require.Equal(t, "2716", f.core.Profile().Name)
}

func TestRunLoop(t *testing.T) {
	p := testProfile(8)
	f := newFixtureWith(t, p, rxq.EmptyBlock)
	f.core.cfg.Tick = time.Millisecond
	f.core.cfg.BaudRate = 9600

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.core.Run(ctx) }()

	f.inject("$4")
	require.Eventually(t, func() bool {
		return f.out.String() == "9600\ntestrom"
	}, time.Second, time.Millisecond)

	cancel()
	require.Equal(t, context.Canceled, <-done)
}

func TestAbortBeforeDispatch(t *testing.T) {
	for _, tc := range []struct {
		cmd  byte
		want string
	}{
		{CmdRead, "Read aborted\n"},
		{CmdBlank, "Check aborted\n"},
		{CmdWrite, "Write aborted\n"},
	} {
		t.Run(tc.want, func(t *testing.T) {
			f := newFixture(t, testProfile(8))
			f.inject(fmt.Sprintf("$%c", tc.cmd))
			f.core.Abort()
			// The dispatcher still drains the frame; the operation
			// observes the cleared flag on its first iteration.
			f.core.dispatch(context.Background())
			f.expectOutput(tc.want)
			require.True(t, f.bus.Line(hal.LineCE), "control lines must be idle after abort")
			require.False(t, f.bus.Line(hal.LinePGM), "pulse line must be released after abort")
			require.Equal(t, hal.DirInput, f.bus.Dir())
		})
	}
}
