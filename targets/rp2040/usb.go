//go:build rp2040 || rp2350

package main

import (
	"machine"
)

// Consecutive write failures after which the host is assumed gone.
const maxWriteFailures = 10

var consecutiveWriteFailures uint32

// InitUSB initializes USB serial communication. machine.Serial is USB
// CDC-ACM on the RP2040; the descriptors come from the TinyGo runtime.
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// usbPort is the dispatcher's Port over USB CDC. Read never blocks.
type usbPort struct{}

func (usbPort) Read(p []byte) (int, error) {
	n := machine.Serial.Buffered()
	if n > len(p) {
		n = len(p)
	}
	for i := 0; i < n; i++ {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return i, err
		}
		p[i] = b
	}
	return n, nil
}

func (usbPort) Write(p []byte) (int, error) {
	n, err := machine.Serial.Write(p)
	if err != nil || n == 0 {
		consecutiveWriteFailures++
	} else {
		consecutiveWriteFailures = 0
	}
	return n, err
}

// usbDisconnected reports whether writes have kept failing, which is how a
// closed host port shows up on CDC.
func usbDisconnected() bool {
	if consecutiveWriteFailures > maxWriteFailures {
		consecutiveWriteFailures = 0
		return true
	}
	return false
}
