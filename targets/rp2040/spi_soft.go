//go:build (rp2040 || rp2350) && softspi

package main

import (
	"machine"

	"tinygo.org/x/drivers"

	"vserprog/core"
)

// softSPIDriver bit-bangs the flash bus on the same pins as SPI0, for boards
// where the hardware block is taken or to debug signal problems at low
// clocks.
type softSPIDriver struct {
	*core.SoftSPI
}

func newSPIDriver() core.SPIDriver {
	return softSPIDriver{core.NewSoftSPI(pinSCK, pinMOSI, pinMISO)}
}

func (d softSPIDriver) ConfigureBus(config core.SPIConfig) (drivers.SPI, error) {
	pinSCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinMOSI.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinMISO.Configure(machine.PinConfig{Mode: machine.PinInput})
	return d.SoftSPI.ConfigureBus(config)
}

func (d softSPIDriver) ReleaseBus() error {
	for _, pin := range []machine.Pin{pinSCK, pinMOSI, pinMISO} {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
	}
	return d.SoftSPI.ReleaseBus()
}
