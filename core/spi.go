// SPI link to the target flash chip
// The link is either disabled (pins floating, peripheral stopped) or enabled
// (peripheral clocked, pins driven, chip select idle high).

package core

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
	"vserprog/protocol"
)

// spiState is one of spiDisabled or spiEnabled.
type spiState interface {
	enabled() bool
}

type spiDisabled struct{}

type spiEnabled struct {
	bus drivers.SPI // valid until the peripheral is released
	hz  uint32
}

func (spiDisabled) enabled() bool { return false }
func (spiEnabled) enabled() bool  { return true }

// SpiLink owns the SPI peripheral and the chip select pin.
type SpiLink struct {
	spi  SPIDriver
	gpio GPIODriver
	cs   GPIOPin

	state  spiState
	lastHz uint32 // last frequency applied by Enable, 0 if none
}

// NewSpiLink creates a disabled link. The target is expected to leave the bus
// pins floating at power-up; nothing is touched until Enable.
func NewSpiLink(spi SPIDriver, gpio GPIODriver, cs GPIOPin) *SpiLink {
	return &SpiLink{
		spi:   spi,
		gpio:  gpio,
		cs:    cs,
		state: spiDisabled{},
	}
}

// Enabled reports whether the link is clocked and driving its pins.
func (l *SpiLink) Enabled() bool {
	return l.state.enabled()
}

// Frequency returns the active clock, or 0 while disabled.
func (l *SpiLink) Frequency() uint32 {
	if en, ok := l.state.(spiEnabled); ok {
		return en.hz
	}
	return 0
}

// LastFrequency returns the last frequency the link was enabled at, even if
// it has been disabled since. Zero means it was never enabled.
func (l *SpiLink) LastFrequency() uint32 {
	return l.lastHz
}

// Enable brings the peripheral up at hz with chip select as an idle-high
// output. It is a no-op when already enabled, whatever the frequency.
func (l *SpiLink) Enable(hz uint32) error {
	if l.Enabled() {
		return nil
	}
	bus, err := l.spi.ConfigureBus(SPIConfig{Mode: FlashSPIMode, Rate: hz})
	if err != nil {
		return fmt.Errorf("spi: configure bus at %d Hz: %w", hz, err)
	}
	if err := l.gpio.ConfigureOutput(l.cs); err != nil {
		return errors.Join(fmt.Errorf("spi: chip select: %w", err), l.spi.ReleaseBus())
	}
	if err := l.gpio.SetPin(l.cs, true); err != nil {
		return errors.Join(fmt.Errorf("spi: chip select: %w", err), l.spi.ReleaseBus())
	}
	l.state = spiEnabled{bus: bus, hz: hz}
	l.lastHz = hz
	return nil
}

// Disable releases the peripheral and floats chip select. It is a no-op when
// already disabled. The link ends up disabled even if releasing fails.
func (l *SpiLink) Disable() error {
	if !l.Enabled() {
		return nil
	}
	l.state = spiDisabled{}
	return errors.Join(l.gpio.ConfigureFloating(l.cs), l.spi.ReleaseBus())
}

// Configure re-enables the link at hz, disabling it first if needed so the
// new frequency always takes effect.
func (l *SpiLink) Configure(hz uint32) error {
	if err := l.Disable(); err != nil {
		return err
	}
	return l.Enable(hz)
}

// TransferWithCS shifts w out and then clocks len(r) bytes into r, all with
// chip select asserted. r is filled with 0xFF before it is clocked so the
// device sees idle MOSI while answering.
//
// While disabled it fails with ErrSPIDisabled without touching chip select.
// Otherwise chip select is deasserted exactly once, on success or failure.
func (l *SpiLink) TransferWithCS(w, r []byte) (err error) {
	en, ok := l.state.(spiEnabled)
	if !ok {
		return ErrSPIDisabled
	}

	defer func() {
		if csErr := l.gpio.SetPin(l.cs, true); err == nil {
			err = csErr
		}
	}()
	if err := l.gpio.SetPin(l.cs, false); err != nil {
		return err
	}

	if len(w) > 0 {
		if err := en.bus.Tx(w, nil); err != nil {
			return fmt.Errorf("spi: write %d bytes: %w", len(w), err)
		}
	}
	if len(r) > 0 {
		for i := range r {
			r[i] = protocol.ReplyFiller
		}
		if err := en.bus.Tx(r, r); err != nil {
			return fmt.Errorf("spi: read %d bytes: %w", len(r), err)
		}
	}
	return nil
}
