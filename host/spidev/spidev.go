// Package spidev backs the serprog SPI link with periph.io: a Linux spidev
// bus or an FTDI FT232H, with chip select on a separate GPIO so it can stay
// asserted across the write and read phases of one operation.
package spidev

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"vserprog/core"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph.io host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// Opener returns a fresh SPI port. Ports can usually only be connected once,
// so every ConfigureBus opens a new one and ReleaseBus closes it.
type Opener func() (spi.PortCloser, error)

// SPI implements core.SPIDriver on top of a periph.io port.
type SPI struct {
	open Opener
	port spi.PortCloser

	// Flags are or-ed into the mode on Connect, e.g. spi.NoCS when the
	// port would otherwise drive a chip select of its own.
	Flags spi.Mode
}

// NewSPI creates a driver that opens its port with open.
func NewSPI(open Opener) *SPI {
	return &SPI{open: open}
}

// OpenSpidev creates a driver for a registered SPI port such as "/dev/spidev0.0"
// or "SPI0.0". An empty name picks the first port found.
func OpenSpidev(name string) *SPI {
	return NewSPI(func() (spi.PortCloser, error) {
		return spireg.Open(name)
	})
}

func (s *SPI) ConfigureBus(cfg core.SPIConfig) (drivers.SPI, error) {
	if s.port != nil {
		if err := s.ReleaseBus(); err != nil {
			return nil, err
		}
	}
	if cfg.Rate == 0 {
		return nil, errors.New("spidev: zero clock rate")
	}
	port, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("spidev: open: %w", err)
	}
	c, err := port.Connect(physic.Frequency(cfg.Rate)*physic.Hertz, spi.Mode(cfg.Mode)|s.Flags, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("spidev: connect %s at %d Hz: %w", port, cfg.Rate, err)
	}
	s.port = port
	return &Bus{conn: c}, nil
}

func (s *SPI) ReleaseBus() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Bus adapts a periph.io connection to the tinygo drivers.SPI interface.
type Bus struct {
	conn spi.Conn
}

// NewBus wraps an already connected periph.io SPI connection.
func NewBus(c spi.Conn) *Bus {
	return &Bus{conn: c}
}

// Tx performs a transfer. periph.io requires both slices to have the same
// length when both are set, which is how the SPI link calls it.
func (b *Bus) Tx(w, r []byte) error {
	if len(w) != 0 && len(r) != 0 && len(w) != len(r) {
		return fmt.Errorf("spidev: mismatched transfer lengths %d and %d", len(w), len(r))
	}
	return b.conn.Tx(w, r)
}

func (b *Bus) Transfer(w byte) (byte, error) {
	buf := [1]byte{w}
	err := b.conn.Tx(buf[:], buf[:])
	return buf[0], err
}

// GPIO implements core.GPIODriver over periph.io pins registered by number.
type GPIO struct {
	pins map[core.GPIOPin]gpio.PinIO
}

// NewGPIO creates a driver with no pins.
func NewGPIO() *GPIO {
	return &GPIO{pins: make(map[core.GPIOPin]gpio.PinIO)}
}

// Register makes pin reachable as num.
func (g *GPIO) Register(num core.GPIOPin, pin gpio.PinIO) {
	g.pins[num] = pin
}

// RegisterByName looks name up in the periph.io pin registry ("GPIO25",
// "25", ...) and registers it as num.
func (g *GPIO) RegisterByName(num core.GPIOPin, name string) error {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("spidev: no GPIO named %q", name)
	}
	g.Register(num, pin)
	return nil
}

func (g *GPIO) pin(num core.GPIOPin) (gpio.PinIO, error) {
	p, ok := g.pins[num]
	if !ok {
		return nil, fmt.Errorf("spidev: GPIO %d not registered", num)
	}
	return p, nil
}

func (g *GPIO) ConfigureOutput(num core.GPIOPin) error {
	p, err := g.pin(num)
	if err != nil {
		return err
	}
	return p.Out(gpio.High)
}

func (g *GPIO) ConfigureFloating(num core.GPIOPin) error {
	p, err := g.pin(num)
	if err != nil {
		return err
	}
	return p.In(gpio.Float, gpio.NoEdge)
}

func (g *GPIO) SetPin(num core.GPIOPin, value bool) error {
	p, err := g.pin(num)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(value))
}
