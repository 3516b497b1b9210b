//go:build rp2040 || rp2350

package main

import (
	"machine"

	"vserprog/core"
)

// gpioDriver implements core.GPIODriver on machine pins.
type gpioDriver struct{}

func (gpioDriver) ConfigureOutput(pin core.GPIOPin) error {
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	p.High()
	return nil
}

func (gpioDriver) ConfigureFloating(pin core.GPIOPin) error {
	machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

func (gpioDriver) SetPin(pin core.GPIOPin, value bool) error {
	machine.Pin(pin).Set(value)
	return nil
}
