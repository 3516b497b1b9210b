//go:build (rp2040 || rp2350) && !piospi && !softspi

package main

import (
	"errors"
	"machine"

	"tinygo.org/x/drivers"

	"vserprog/core"
)

// hwSPIDriver implements core.SPIDriver on the SPI0 peripheral.
type hwSPIDriver struct {
	spi *machine.SPI
}

func newSPIDriver() core.SPIDriver {
	return &hwSPIDriver{spi: machine.SPI0}
}

func (d *hwSPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	if config.Mode > 3 {
		return nil, errors.New("invalid SPI mode")
	}
	err := d.spi.Configure(machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       pinSCK,
		SDO:       pinMOSI, // SDO = Serial Data Out (MOSI)
		SDI:       pinMISO, // SDI = Serial Data In (MISO)
		Mode:      uint8(config.Mode),
	})
	if err != nil {
		return nil, err
	}
	return d.spi, nil
}

// ReleaseBus hands the SPI pins back to GPIO as inputs so the target board
// can be driven by something else.
func (d *hwSPIDriver) ReleaseBus() error {
	for _, pin := range []machine.Pin{pinSCK, pinMOSI, pinMISO} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return nil
}
