package hal

import "sync"

// SimPin is an in-memory Pin.
type SimPin struct {
	mu    sync.Mutex
	level bool
	dir   Dir
}

// Input implements Pin.
func (p *SimPin) Input() {
	p.mu.Lock()
	p.dir = DirInput
	p.mu.Unlock()
}

// Output implements Pin.
func (p *SimPin) Output() {
	p.mu.Lock()
	p.dir = DirOutput
	p.mu.Unlock()
}

// Set implements Pin.
func (p *SimPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

// Get implements Pin.
func (p *SimPin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// SimEPROM is an in-memory Bus behaving like an EPROM in the socket:
// cells erase to 0xFF, and a program pulse can only clear bits. It commits
// the latched data byte into the addressed cell on the rising edge of the
// configured pulse line (at its active level) while the data port is
// driven by the programmer.
type SimEPROM struct {
	mu          sync.Mutex
	mem         []byte
	addr        uint16
	latch       byte
	dir         Dir
	lines       [NumLines]bool
	pulseLine   Line
	pulseActive bool
}

// NewSimEPROM creates an erased device of the given size. pulseLine and
// activeHigh describe the program pulse the device expects.
func NewSimEPROM(size int, pulseLine Line, activeHigh bool) *SimEPROM {
	s := &SimEPROM{
		mem:         make([]byte, size),
		pulseLine:   pulseLine,
		pulseActive: activeHigh,
	}
	// Control lines idle high (negated), matching the board reset state.
	for i := range s.lines {
		s.lines[i] = true
	}
	s.Erase()
	return s
}

// SetAddress implements Bus.
func (s *SimEPROM) SetAddress(addr uint16) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
}

// SetDataDir implements Bus.
func (s *SimEPROM) SetDataDir(d Dir) {
	s.mu.Lock()
	s.dir = d
	s.mu.Unlock()
}

// WriteData implements Bus.
func (s *SimEPROM) WriteData(b byte) {
	s.mu.Lock()
	s.latch = b
	s.mu.Unlock()
}

// ReadData implements Bus.
func (s *SimEPROM) ReadData() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(s.addr) >= len(s.mem) {
		return 0xff
	}
	return s.mem[s.addr]
}

// SetLine implements Bus.
func (s *SimEPROM) SetLine(l Line, level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.lines[l]
	s.lines[l] = level
	if l != s.pulseLine || prev == level {
		return
	}
	if level == s.pulseActive && s.dir == DirOutput && int(s.addr) < len(s.mem) {
		// Programming clears bits only.
		s.mem[s.addr] &= s.latch
	}
}

// Dir reports the current data port direction.
func (s *SimEPROM) Dir() Dir {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Line reports the current level of a control line.
func (s *SimEPROM) Line(l Line) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines[l]
}

// Erase restores every cell to 0xFF.
func (s *SimEPROM) Erase() {
	s.mu.Lock()
	for i := range s.mem {
		s.mem[i] = 0xff
	}
	s.mu.Unlock()
}

// Load copies data into the device starting at address 0, bypassing
// pulse semantics. Intended for seeding test fixtures.
func (s *SimEPROM) Load(data []byte) {
	s.mu.Lock()
	copy(s.mem, data)
	s.mu.Unlock()
}

// ByteAt returns the cell content at addr.
func (s *SimEPROM) ByteAt(addr uint16) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem[addr]
}

// Size returns the device size in bytes.
func (s *SimEPROM) Size() int {
	return len(s.mem)
}
