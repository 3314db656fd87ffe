// Package sh provides the ishell backed host shell speaking the
// programmer's command protocol over a serial port, an MQTT broker or a
// websocket.
package sh

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
	"go.bug.st/serial"

	"github.com/peardrop/eprog/pkg/device"
	"github.com/peardrop/eprog/pkg/firmware"
	mqttlink "github.com/peardrop/eprog/pkg/link/mqtt"
	wslink "github.com/peardrop/eprog/pkg/link/ws"
)

// Shell wraps ishell with a programmer connection.
type Shell struct {
	Interactive bool

	Shell   *ishell.Shell
	conn    io.ReadWriteCloser
	profile *device.Profile
	baud    int
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	evalOnly bool

	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&InitCmd,
		&ReadCmd,
		&BlankCmd,
		&IdentifyCmd,
		&TypeCmd,
		&WriteCmd,
	}
)

// SetupFlags registers command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// New creates a new shell.
func New() *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		baud:        9600,
	}
	s.profile, _ = device.Lookup(device.Type2716)
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command funcs requiring a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).conn == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

// Connect opens the programmer link named by target:
// a serial device path, an mqtt:// broker URL (with the programmer name
// as the next argument) or a ws:// URL.
func (s *Shell) Connect(target string, args ...string) error {
	var conn io.ReadWriteCloser
	var err error
	switch {
	case strings.HasPrefix(target, "mqtt://"), strings.HasPrefix(target, "ssl://"):
		if len(args) < 1 {
			return fmt.Errorf("mqtt connect needs a programmer name")
		}
		var q *mqttlink.Queue
		if q, err = mqttlink.NewQueueFromURL(target); err != nil {
			return err
		}
		if err = q.Connect(); err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		mc := &mqttConn{Link: mqttlink.ForHost(q, args[0]), queue: q, cancel: cancel}
		go mc.Link.Run(ctx)
		conn = mc
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		if conn, err = wslink.Dial(target, "http://localhost/"); err != nil {
			return err
		}
	default:
		if len(args) > 0 {
			if s.baud, err = strconv.Atoi(args[0]); err != nil {
				return fmt.Errorf("bad baud rate %q", args[0])
			}
		}
		mode := &serial.Mode{BaudRate: s.baud}
		var port serial.Port
		if port, err = serial.Open(target, mode); err != nil {
			return err
		}
		conn = port
	}

	s.Disconnect()
	s.conn = conn
	go s.pump(conn)
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", target))
	return nil
}

// pump streams programmer responses to the console as they arrive.
func (s *Shell) pump(conn io.Reader) {
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.Shell.Print(string(buf[:n]))
		}
		if err != nil {
			if err != io.EOF {
				glog.V(1).Infof("link closed: %v", err)
			}
			return
		}
	}
}

// Disconnect closes the current connection.
func (s *Shell) Disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

func (s *Shell) sendCmd(code byte) error {
	_, err := s.conn.Write([]byte{firmware.FrameMarker, code})
	return err
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exitln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exitln("command expected")
}

var (
	// ConnectCmd opens a programmer link.
	ConnectCmd = ishell.Cmd{
		Name: "connect",
		Help: "connect <serial-dev> [baud] | mqtt://broker/prefix <name> | ws://host/path",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("target expected"))
				return
			}
			s := ShellFrom(c)
			if err := s.Connect(c.Args[0], c.Args[1:]...); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the link.
	DisconnectCmd = ishell.Cmd{
		Name: "disconnect",
		Help: "close the programmer link",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// InitCmd triggers autobaud on a freshly reset board.
	InitCmd = ishell.Cmd{
		Name: "init",
		Help: "send the autobaud character; the board echoes its rate",
		Func: MustBeConnected(func(c *ishell.Context) {
			if _, err := ShellFrom(c).conn.Write([]byte{firmware.CmdInitBaud}); err != nil {
				c.Err(err)
			}
		}),
	}

	// ReadCmd dumps the device.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"dump"},
		Help:    "read the whole device as a hex dump",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).sendCmd(firmware.CmdRead); err != nil {
				c.Err(err)
			}
		}),
	}

	// BlankCmd checks the device is erased.
	BlankCmd = ishell.Cmd{
		Name:    "blank",
		Aliases: []string{"check"},
		Help:    "check the device is blank (all FF)",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).sendCmd(firmware.CmdBlank); err != nil {
				c.Err(err)
			}
		}),
	}

	// IdentifyCmd asks for the active device identity.
	IdentifyCmd = ishell.Cmd{
		Name:    "identify",
		Aliases: []string{"id"},
		Help:    "report the active device type",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).sendCmd(firmware.CmdIdentify); err != nil {
				c.Err(err)
			}
		}),
	}

	// TypeCmd selects the device family.
	TypeCmd = ishell.Cmd{
		Name: "type",
		Help: "type <2716|2732|2532|2708> - select the device family",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("family expected"))
				return
			}
			p, ok := device.ByName(c.Args[0])
			if !ok {
				c.Err(fmt.Errorf("unknown family %q", c.Args[0]))
				return
			}
			s := ShellFrom(c)
			if err := s.sendCmd(firmware.CmdSetType); err != nil {
				c.Err(err)
				return
			}
			if _, err := s.conn.Write([]byte{byte(p.Type)}); err != nil {
				c.Err(err)
				return
			}
			s.profile = p
			c.Printf("device type %s (%d bytes)\n", p.Name, p.Size)
		}),
	}

	// WriteCmd programs a binary image.
	WriteCmd = ishell.Cmd{
		Name:    "write",
		Aliases: []string{"program"},
		Help:    "write <file> - program a binary image into the device",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("file expected"))
				return
			}
			s := ShellFrom(c)
			img, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			size := int(s.profile.Size)
			if len(img) > size {
				c.Err(fmt.Errorf("%s is %d bytes, device holds %d", c.Args[0], len(img), size))
				return
			}
			// The payload is exactly two hex chars per address; pad
			// short images with the erased value.
			padded := make([]byte, size)
			for i := range padded {
				padded[i] = 0xff
			}
			copy(padded, img)

			if err = s.sendCmd(firmware.CmdWrite); err != nil {
				c.Err(err)
				return
			}
			if _, err = io.WriteString(s.conn, hex.EncodeToString(padded)); err != nil {
				c.Err(err)
				return
			}
			c.Printf("%d bytes queued for programming\n", size)
		}),
	}
)

// mqttConn adapts the MQTT link to io.ReadWriteCloser.
type mqttConn struct {
	*mqttlink.Link
	queue  *mqttlink.Queue
	cancel func()
}

func (m *mqttConn) Close() error {
	m.cancel()
	return m.queue.Close()
}
