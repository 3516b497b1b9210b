//go:build rp2040 || rp2350

package main

import (
	"context"
	"log/slog"
	"machine"
	"time"

	"vserprog/core"
)

// Board wiring. SPI0 drives the flash, chip select is a plain GPIO so it can
// stay low across the write and read phases of an operation.
const (
	pinSCK  = machine.GPIO2
	pinMOSI = machine.GPIO3
	pinMISO = machine.GPIO4
	pinCS   = machine.GPIO5
)

var (
	// Debug counters
	panics   uint32
	sessions uint32
)

func main() {
	// Clear any watchdog state left over from a previous run.
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	logger := InitDebugUART()

	link := core.NewSpiLink(newSPIDriver(), gpioDriver{}, core.GPIOPin(pinCS))
	prog, err := core.NewProgrammer(core.Config{
		Port:   usbPort{},
		SPI:    link,
		Logger: logger,
		Idle:   func() { time.Sleep(10 * time.Microsecond) },
	})
	if err != nil {
		logger.Error("serprog:init", slog.String("err", err.Error()))
		return
	}
	logger.Info("serprog:ready", slog.Int("cs", int(pinCS)))

	ctx := context.Background()
	for {
		// Recover from panics so one bad command does not take the
		// programmer down. The buffer is dropped since its content is
		// suspect.
		func() {
			defer func() {
				if r := recover(); r != nil {
					panics++
					prog.Buffer().Clear()
					logger.Error("serprog:panic", slog.Uint64("count", uint64(panics)))
				}
			}()

			if err := prog.Step(ctx); err != nil && usbDisconnected() {
				// Host went away: release the flash and start clean.
				sessions++
				if rerr := prog.Reset(); rerr != nil {
					logger.Warn("serprog:reset", slog.String("err", rerr.Error()))
				}
			}
		}()
	}
}
