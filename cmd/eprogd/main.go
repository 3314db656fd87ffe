package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/peardrop/eprog/pkg/device"
	"github.com/peardrop/eprog/pkg/firmware"
	fx "github.com/peardrop/eprog/pkg/framework"
	"github.com/peardrop/eprog/pkg/hal"
	mqttlink "github.com/peardrop/eprog/pkg/link/mqtt"
	wslink "github.com/peardrop/eprog/pkg/link/ws"
	"github.com/peardrop/eprog/pkg/rxq"
)

var (
	portName   = flag.String("port", "", "serial device of the host link; stdio when empty")
	baud       = flag.Int("baud", 9600, "serial baud rate")
	broker     = flag.String("broker", "", "expose the link through this MQTT broker URL")
	name       = flag.String("name", "eprog", "programmer name for the MQTT topic pair")
	listen     = flag.String("listen", "", "serve the link over websocket on this address")
	family     = flag.String("device", "2716", "device family at startup")
	popPolicy  = flag.String("pop", "block", "empty-queue policy: block or fail")
	singleMark = flag.Bool("single-mark", false, "single watermark flow control, no hysteresis")
	capacity   = flag.Int("capacity", rxq.DefaultCapacity, "receive queue capacity")
)

// switchWriter lets transient sessions (websocket) take over the
// response stream. Output with no session attached is dropped.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	w := s.w
	s.mu.Unlock()
	if w == nil {
		return len(p), nil
	}
	return w.Write(p)
}

func (s *switchWriter) attach(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func main() {
	flag.Parse()

	profile, ok := device.ByName(*family)
	if !ok {
		glog.Exitf("unknown device family %q", *family)
	}

	cfg := firmware.Config{
		Profile: profile,
		Queue: rxq.Config{
			Capacity: *capacity,
		},
	}
	switch *popPolicy {
	case "block":
		cfg.Queue.Empty = rxq.EmptyBlock
	case "fail":
		cfg.Queue.Empty = rxq.EmptyFail
	default:
		glog.Exitf("unknown pop policy %q", *popPolicy)
	}
	if *singleMark {
		cfg.Queue.Marks = rxq.Watermarks{High: *capacity - 32, Low: *capacity - 32}
	}

	// No real port driver is wired in: the daemon programs the
	// in-memory device, which is what bench tests talk to. Embedders
	// provide their own hal.Bus for real hardware.
	bus := hal.NewSimEPROM(int(profile.Size), profile.PulseLine, profile.PulseActiveHigh)
	cts := &hal.SimPin{}
	leds := &hal.LEDIndicator{Green: &hal.SimPin{}, Orange: &hal.SimPin{}, Red: &hal.SimPin{}}
	ind := hal.Indicators{leds, &hal.LogIndicator{}}
	flow := &hal.FlowPin{Pin: cts}

	runner := fx.NewRunner().HandleSignals()

	switch {
	case *broker != "":
		q, err := mqttlink.NewQueueFromURL(*broker)
		if err != nil {
			glog.Exitln(err)
		}
		if err = q.Connect(); err != nil {
			glog.Exitln(err)
		}
		defer q.Close()
		link := mqttlink.ForProgrammer(q, *name)
		core := firmware.New(cfg, bus, link, flow, ind)
		runner.Go(fx.NamedRun("link", link),
			fx.NamedRun("core", core),
			&firmware.Receiver{Reader: link, Core: core})

	case *listen != "":
		tx := &switchWriter{}
		core := firmware.New(cfg, bus, tx, flow, ind)
		var sessions sync.Mutex
		handler := wslink.Handler(func(conn io.ReadWriter) {
			// One point-to-point session at a time.
			sessions.Lock()
			defer sessions.Unlock()
			tx.attach(conn)
			defer tx.attach(nil)
			buf := make([]byte, 64)
			for {
				n, err := conn.Read(buf)
				for i := 0; i < n; i++ {
					core.OnByte(buf[i])
				}
				if err != nil {
					return
				}
			}
		})
		srv := &http.Server{Addr: *listen, Handler: handler}
		runner.Go(fx.NamedRun("core", core),
			fx.NamedRun("http", fx.RunFunc(func(ctx context.Context) error {
				glog.Infof("serving websocket link on %s", *listen)
				return fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
			})))

	case *portName != "":
		cfg.BaudRate = *baud
		port, err := serial.Open(*portName, &serial.Mode{BaudRate: *baud})
		if err != nil {
			glog.Exitln(err)
		}
		core := firmware.New(cfg, bus, port, flow, ind)
		recv := &firmware.Receiver{Reader: port, Core: core}
		runner.Go(fx.NamedRun("core", core),
			fx.NamedRun("receiver", fx.RunFunc(func(ctx context.Context) error {
				// Closing the port on cancel unblocks the pending read.
				return fx.RunWithContextCloser(ctx, port, func() error {
					return recv.Run(ctx)
				})
			})))

	default:
		core := firmware.New(cfg, bus, os.Stdout, flow, ind)
		runner.Go(fx.NamedRun("core", core),
			&firmware.Receiver{Reader: os.Stdin, Core: core})
	}

	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
