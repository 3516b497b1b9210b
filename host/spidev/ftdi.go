package spidev

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3/ftdi"
)

// FT232H USB IDs. The FT2232H exposes the same MPSSE engine.
const (
	ftdiVendorID = 0x0403
	ft232hID     = 0x6014
	ft2232hID    = 0x6010
)

// OpenFTDI returns the first FT232H-class device attached. Init must have
// been called.
func OpenFTDI() (*ftdi.FT232H, error) {
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != ftdiVendorID || (info.DevID != ft232hID && info.DevID != ft2232hID) {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}
	return nil, errors.New("spidev: no FT232H found")
}

// FTDISPI returns a driver for the MPSSE SPI port of ft (D0 clock, D1 MOSI,
// D2 MISO). The engine's own chip select on D3 is left unused.
func FTDISPI(ft *ftdi.FT232H) *SPI {
	s := NewSPI(func() (spi.PortCloser, error) {
		return ft.SPI()
	})
	s.Flags = spi.NoCS
	return s
}

// FTDIPin returns the D or C bus pin of ft with the given name, for use as
// chip select. D0 to D3 belong to the MPSSE engine and are refused.
func FTDIPin(ft *ftdi.FT232H, name string) (gpio.PinIO, error) {
	pins := map[string]gpio.PinIO{
		"D4": ft.D4, "D5": ft.D5, "D6": ft.D6, "D7": ft.D7,
		"C0": ft.C0, "C1": ft.C1, "C2": ft.C2, "C3": ft.C3, "C4": ft.C4,
		"C5": ft.C5, "C6": ft.C6, "C7": ft.C7,
	}
	pin, ok := pins[name]
	if !ok {
		return nil, fmt.Errorf("spidev: %q is not a usable FT232H chip select", name)
	}
	return pin, nil
}
