package core

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// BitPin is one line of a bit-banged bus. machine.Pin satisfies it.
type BitPin interface {
	Set(high bool)
	Get() bool
}

// SoftSPI is an SPIDriver that bit-bangs SCK, MOSI and MISO, MSB first.
// Pin direction setup is left to the caller since it is board specific.
type SoftSPI struct {
	sck, mosi, miso BitPin

	// Sleep waits half a clock period. Defaults to time.Sleep.
	Sleep func(time.Duration)

	halfPeriod time.Duration
	cpol, cpha bool
}

// NewSoftSPI creates a bit-banged driver on the given pins.
func NewSoftSPI(sck, mosi, miso BitPin) *SoftSPI {
	return &SoftSPI{sck: sck, mosi: mosi, miso: miso, Sleep: time.Sleep}
}

func (s *SoftSPI) ConfigureBus(config SPIConfig) (drivers.SPI, error) {
	if config.Rate == 0 {
		return nil, errors.New("softspi: zero clock rate")
	}
	if config.Mode > 3 {
		return nil, errors.New("softspi: invalid SPI mode")
	}
	s.cpol = config.Mode&2 != 0
	s.cpha = config.Mode&1 != 0
	// Two clock edges per bit. Rates above 500 MHz run as fast as the pins
	// toggle.
	s.halfPeriod = max(time.Second/(2*time.Duration(config.Rate)), time.Nanosecond)

	s.sck.Set(s.cpol)
	s.mosi.Set(false)
	return softBus{s}, nil
}

func (s *SoftSPI) ReleaseBus() error {
	return nil
}

type softBus struct {
	s *SoftSPI
}

func (b softBus) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	for i := 0; i < n; i++ {
		out := byte(0xFF)
		if i < len(w) {
			out = w[i]
		}
		in := b.s.transferByte(out)
		if i < len(r) {
			r[i] = in
		}
	}
	return nil
}

func (b softBus) Transfer(w byte) (byte, error) {
	return b.s.transferByte(w), nil
}

func (s *SoftSPI) transferByte(tx byte) byte {
	var rx byte
	for bit := 7; bit >= 0; bit-- {
		s.mosi.Set(tx&(1<<bit) != 0)

		// CPHA=0 samples on the leading edge, with data already set up.
		if !s.cpha && s.miso.Get() {
			rx |= 1 << bit
		}
		s.sck.Set(!s.cpol)
		s.Sleep(s.halfPeriod)

		if s.cpha && s.miso.Get() {
			rx |= 1 << bit
		}
		s.sck.Set(s.cpol)
		s.Sleep(s.halfPeriod)
	}
	return rx
}
