package serial

import (
	"io"
)

// Port is a byte stream a serprog host or daemon talks over: a serial
// device or the daemon's pseudo-terminal.
type Port interface {
	io.ReadWriteCloser

	// Flush discards input that has not been read yet.
	Flush() error
}

// Config selects the serial device and line settings.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate (USB CDC ignores this; UART bridges do not)
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud is what flashrom uses for serprog over a UART bridge.
const DefaultBaud = 115200

// DefaultConfig returns a default configuration for a serprog device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 50,
	}
}
