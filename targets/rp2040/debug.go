//go:build rp2040 || rp2350

package main

import (
	"io"
	"log/slog"
	"machine"

	"vserprog/core"
)

// InitDebugUART sets up UART0 on GPIO0 (TX) and GPIO1 (RX) at 115200 baud
// and returns a logger writing to it. If the UART cannot be configured the
// logger discards everything.
func InitDebugUART() *slog.Logger {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return core.NewLogger(io.Discard, slog.LevelError)
	}
	return core.NewLogger(uart, slog.LevelInfo)
}
