package core

import "tinygo.org/x/drivers"

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// SPI flash parts are driven in mode 0.
const FlashSPIMode SPIMode = 0

// SPIConfig holds the configuration for an SPI bus
type SPIConfig struct {
	Mode SPIMode // SPI mode (0-3)
	Rate uint32  // Clock rate in Hz
}

// SPIDriver is the abstract SPI peripheral that core code uses.
// Platform-specific implementations handle actual hardware control.
type SPIDriver interface {
	// ConfigureBus clocks the peripheral at config.Rate and switches its
	// pins to their active function. The returned bus is only used until the
	// next ReleaseBus.
	ConfigureBus(config SPIConfig) (drivers.SPI, error)

	// ReleaseBus stops the peripheral and leaves its pins floating.
	ReleaseBus() error
}
