package hal

import "github.com/golang/glog"

// Status is a coarse state of the programmer, surfaced to the operator
// through indicator LEDs.
type Status int

// Statuses.
const (
	// StatusReady means idle, listening for a command.
	StatusReady Status = iota
	// StatusBusy means a command is executing.
	StatusBusy
	// StatusWaiting means the consumer is waiting for receive data.
	StatusWaiting
	// StatusOverflow means the receive queue rejected a byte.
	StatusOverflow
	// StatusUnderflow means a pop found the receive queue empty.
	StatusUnderflow
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusBusy:
		return "busy"
	case StatusWaiting:
		return "waiting"
	case StatusOverflow:
		return "overflow"
	case StatusUnderflow:
		return "underflow"
	}
	return "unknown"
}

// Indicator observes status transitions.
type Indicator interface {
	Indicate(Status)
}

// IndicateFunc is func type of Indicator.
type IndicateFunc func(Status)

// Indicate implements Indicator.
func (f IndicateFunc) Indicate(s Status) {
	f(s)
}

// Indicators fans out to multiple indicators.
type Indicators []Indicator

// Indicate implements Indicator.
func (l Indicators) Indicate(s Status) {
	for _, ind := range l {
		ind.Indicate(s)
	}
}

// LEDIndicator maps statuses onto the three board LEDs.
type LEDIndicator struct {
	Green  Pin // ready
	Orange Pin // busy, also lit on overflow
	Red    Pin // waiting/underflow
}

// Indicate implements Indicator.
func (l *LEDIndicator) Indicate(s Status) {
	switch s {
	case StatusReady:
		l.Green.Set(true)
		l.Orange.Set(false)
		l.Red.Set(false)
	case StatusBusy:
		l.Green.Set(false)
		l.Orange.Set(true)
		l.Red.Set(false)
	case StatusWaiting, StatusUnderflow:
		l.Red.Set(!l.Red.Get())
	case StatusOverflow:
		l.Orange.Set(!l.Orange.Get())
	}
}

// LogIndicator logs status transitions.
type LogIndicator struct {
	last Status
}

// Indicate implements Indicator.
func (l *LogIndicator) Indicate(s Status) {
	switch s {
	case StatusOverflow, StatusUnderflow:
		glog.Warningf("status: %v", s)
	default:
		if s != l.last {
			glog.V(1).Infof("status: %v", s)
		}
	}
	l.last = s
}

// FlowPin drives the hardware flow-control output from pause/resume
// requests. The line is active low: a high level tells the host to stop
// sending.
type FlowPin struct {
	Pin Pin
}

// SetPause implements rxq.FlowControl.
func (p *FlowPin) SetPause(pause bool) {
	p.Pin.Set(pause)
}
