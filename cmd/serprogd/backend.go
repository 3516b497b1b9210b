package main

import (
	"fmt"
	"log/slog"
	"os"

	"vserprog/core"
	"vserprog/host/config"
	"vserprog/host/flashsim"
	"vserprog/host/spidev"
)

// csNum is the pin number the chip select is registered under on the
// periph.io backends.
const csNum core.GPIOPin = 0

type backend struct {
	spi   core.SPIDriver
	gpio  core.GPIODriver
	cs    core.GPIOPin
	close func()
}

func openBackend(cfg *config.DaemonConfig) (*backend, error) {
	switch cfg.Backend {
	case config.BackendSim:
		fc := flashsim.DefaultConfig()
		fc.Size = cfg.SimSize
		f := flashsim.New(fc)
		if cfg.SimImage != "" {
			img, err := os.ReadFile(cfg.SimImage)
			if err != nil {
				return nil, err
			}
			if len(img) > f.Size() {
				return nil, fmt.Errorf("image %s is %d bytes, flash is %d", cfg.SimImage, len(img), f.Size())
			}
			f.Load(0, img)
		}
		return &backend{spi: f, gpio: f, cs: fc.CS, close: func() {}}, nil

	case config.BackendSpidev:
		if err := spidev.Init(); err != nil {
			return nil, err
		}
		g := spidev.NewGPIO()
		if err := g.RegisterByName(csNum, cfg.CSPin); err != nil {
			return nil, err
		}
		s := spidev.OpenSpidev(cfg.SPIPort)
		return &backend{spi: s, gpio: g, cs: csNum, close: func() { s.ReleaseBus() }}, nil

	case config.BackendFTDI:
		if err := spidev.Init(); err != nil {
			return nil, err
		}
		ft, err := spidev.OpenFTDI()
		if err != nil {
			return nil, err
		}
		pin, err := spidev.FTDIPin(ft, cfg.CSPin)
		if err != nil {
			return nil, err
		}
		g := spidev.NewGPIO()
		g.Register(csNum, pin)
		s := spidev.FTDISPI(ft)
		return &backend{spi: s, gpio: g, cs: csNum, close: func() { s.ReleaseBus() }}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// probeChip reads the JEDEC ID once at startup so a wiring problem shows up
// before flashrom connects. Failures are only logged.
func probeChip(link *core.SpiLink, hz uint32, logger *slog.Logger) {
	if err := link.Enable(hz); err != nil {
		logger.Warn("serprogd:probe", slog.Any("err", err))
		return
	}
	defer link.Disable()

	var id [3]byte
	if err := link.TransferWithCS([]byte{0x9F}, id[:]); err != nil {
		logger.Warn("serprogd:probe", slog.Any("err", err))
		return
	}
	logger.Info("serprogd:probe", slog.String("jedec", fmt.Sprintf("%02X %02X %02X", id[0], id[1], id[2])), slog.Uint64("hz", uint64(hz)))
}
