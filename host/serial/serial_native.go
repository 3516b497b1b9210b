//go:build !wasm

package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// NativePort is a serprog link over a real serial device: a programmer's
// USB CDC port on the host side, or the UART bridge serprogd answers on.
type NativePort struct {
	port   *serial.Port
	device string
	polled bool // a read timeout is set, so an empty read is not a hangup
}

// Open opens cfg.Device at cfg.Baud. With a ReadTimeout the port returns
// from Read periodically even when the other side is silent.
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serial: nil config")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", cfg.Device, cfg.Baud, err)
	}
	return &NativePort{port: port, device: cfg.Device, polled: cfg.ReadTimeout > 0}, nil
}

// Read returns (0, nil) when the read timeout expires with nothing received.
// tarm/serial reports that case as io.EOF, which would otherwise end the
// serprog session as if the host had gone away.
func (p *NativePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && err == io.EOF && p.polled {
		return 0, nil
	}
	return n, err
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// Flush drops input the programmer sent before a resync.
func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the path the port was opened with.
func (p *NativePort) Device() string {
	return p.device
}
