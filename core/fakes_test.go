package core

import (
	"bytes"
	"errors"
	"io"

	"tinygo.org/x/drivers"
)

// fakePort serves in, chunk bytes per Read, and collects writes.
type fakePort struct {
	in       []byte
	chunk    int // bytes per Read, 0 means all
	eof      bool
	readErr  error
	maxWrite int // bytes accepted per Write, 0 means all
	writeErr error
	zeroes   int // Write calls that accept nothing before progress
	out      bytes.Buffer
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.in) == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := len(f.in)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p, f.in[:n])
	f.in = f.in[n:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.zeroes > 0 {
		f.zeroes--
		return 0, nil
	}
	n := len(p)
	if f.maxWrite > 0 && n > f.maxWrite {
		n = f.maxWrite
	}
	f.out.Write(p[:n])
	return n, nil
}

// fakeBus is a drivers.SPI that records what was shifted out and answers
// reads from reply.
type fakeBus struct {
	written []byte
	reads   [][]byte // what each read Tx sent
	reply   []byte
	failTx  int // fail the n-th Tx call (1-based), 0 never
	calls   int
}

var errBus = errors.New("bus fault")

func (b *fakeBus) Tx(w, r []byte) error {
	b.calls++
	if b.failTx == b.calls {
		return errBus
	}
	if r == nil {
		b.written = append(b.written, w...)
		return nil
	}
	b.reads = append(b.reads, append([]byte(nil), w...))
	n := copy(r, b.reply)
	b.reply = b.reply[n:]
	return nil
}

func (b *fakeBus) Transfer(w byte) (byte, error) {
	r := []byte{0}
	err := b.Tx([]byte{w}, r)
	return r[0], err
}

var _ drivers.SPI = (*fakeBus)(nil)

// fakeSPI hands out bus on every ConfigureBus.
type fakeSPI struct {
	bus          *fakeBus
	configs      []SPIConfig
	releases     int
	configureErr error
}

func (s *fakeSPI) ConfigureBus(cfg SPIConfig) (drivers.SPI, error) {
	if s.configureErr != nil {
		return nil, s.configureErr
	}
	s.configs = append(s.configs, cfg)
	return s.bus, nil
}

func (s *fakeSPI) ReleaseBus() error {
	s.releases++
	return nil
}

// fakeGPIO records every pin operation as a short event string.
type fakeGPIO struct {
	events []string
	level  map[GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{level: make(map[GPIOPin]bool)}
}

func (g *fakeGPIO) ConfigureOutput(pin GPIOPin) error {
	g.events = append(g.events, "out")
	return nil
}

func (g *fakeGPIO) ConfigureFloating(pin GPIOPin) error {
	g.events = append(g.events, "float")
	return nil
}

func (g *fakeGPIO) SetPin(pin GPIOPin, value bool) error {
	g.level[pin] = value
	if value {
		g.events = append(g.events, "high")
	} else {
		g.events = append(g.events, "low")
	}
	return nil
}

func (g *fakeGPIO) count(event string) int {
	n := 0
	for _, e := range g.events {
		if e == event {
			n++
		}
	}
	return n
}

const testCS GPIOPin = 5

type rig struct {
	port *fakePort
	spi  *fakeSPI
	gpio *fakeGPIO
	link *SpiLink
	prog *Programmer
}

func newRig(input ...byte) *rig {
	r := &rig{
		port: &fakePort{in: input},
		spi:  &fakeSPI{bus: &fakeBus{}},
		gpio: newFakeGPIO(),
	}
	r.link = NewSpiLink(r.spi, r.gpio, testCS)
	prog, err := NewProgrammer(Config{Port: r.port, SPI: r.link})
	if err != nil {
		panic(err)
	}
	r.prog = prog
	return r
}
