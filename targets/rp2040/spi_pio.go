//go:build (rp2040 || rp2350) && piospi

package main

import (
	"errors"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
	"tinygo.org/x/drivers"

	"vserprog/core"
)

// pioSPIDriver implements core.SPIDriver with a PIO state machine, which
// leaves both hardware SPI blocks free.
//
// The program is loaded on the first ConfigureBus. Later calls only
// reprogram the clock divider of the stopped state machine. Releasing the
// bus stops the state machine and floats the pins.
type pioSPIDriver struct {
	sm  pio.StateMachine
	spi *piolib.SPI
}

func newSPIDriver() core.SPIDriver {
	return &pioSPIDriver{}
}

func (d *pioSPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	if config.Mode != core.FlashSPIMode {
		return nil, errors.New("pio spi: only mode 0 is supported")
	}
	if d.spi == nil {
		sm, err := pio.PIO0.ClaimStateMachine()
		if err != nil {
			return nil, err
		}
		spi, err := piolib.NewSPI(sm, machine.SPIConfig{
			Frequency: config.Rate,
			SCK:       pinSCK,
			SDO:       pinMOSI,
			SDI:       pinMISO,
		})
		if err != nil {
			return nil, err
		}
		d.sm, d.spi = sm, spi
		return pioBus{spi}, nil
	}

	whole, frac, err := pio.ClkDivFromFrequency(config.Rate, machine.CPUFrequency())
	if err != nil {
		return nil, err
	}
	d.sm.SetEnabled(false)
	d.sm.SetClkDiv(whole, frac)
	d.sm.ClkDivRestart()
	for _, pin := range []machine.Pin{pinSCK, pinMOSI, pinMISO} {
		pin.Configure(machine.PinConfig{Mode: machine.PinPIO0})
	}
	d.sm.SetEnabled(true)
	return pioBus{d.spi}, nil
}

func (d *pioSPIDriver) ReleaseBus() error {
	if d.spi == nil {
		return nil
	}
	d.sm.SetEnabled(false)
	for _, pin := range []machine.Pin{pinSCK, pinMOSI, pinMISO} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return nil
}

// pioBus clocks one byte at a time. piolib's Tx wants equal length slices
// and the link writes with a nil read slice.
type pioBus struct {
	spi *piolib.SPI
}

func (b pioBus) Tx(w, r []byte) error {
	n := max(len(w), len(r))
	for i := 0; i < n; i++ {
		out := byte(0xFF)
		if i < len(w) {
			out = w[i]
		}
		in, err := b.spi.Transfer(out)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = in
		}
	}
	return nil
}

func (b pioBus) Transfer(w byte) (byte, error) {
	return b.spi.Transfer(w)
}
