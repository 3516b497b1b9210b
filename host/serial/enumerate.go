//go:build !wasm

package serial

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB IDs the firmware enumerates with (Raspberry Pi Pico CDC).
const (
	DefaultVID = "2E8A"
	DefaultPID = "000A"
)

// USBPort describes a USB serial device found on the host.
type USBPort struct {
	Name         string
	VID, PID     string
	SerialNumber string
	Product      string
}

// ListUSB returns every USB serial port the OS knows about.
func ListUSB() ([]USBPort, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	var usb []USBPort
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		usb = append(usb, USBPort{
			Name:         p.Name,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return usb, nil
}

// FindUSB returns the device path of the first USB serial port matching vid
// and pid (hex, case insensitive).
func FindUSB(vid, pid string) (string, error) {
	ports, err := ListUSB()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no USB serial device %s:%s found among %d ports", vid, pid, len(ports))
}
