// Package config holds the serprog daemon configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Transports and backends the daemon knows.
const (
	TransportSerial = "serial"
	TransportPTY    = "pty"
	TransportTCP    = "tcp"

	BackendSpidev = "spidev"
	BackendFTDI   = "ftdi"
	BackendSim    = "sim"
)

// DaemonConfig describes where serprogd listens and which SPI backend it
// drives.
type DaemonConfig struct {
	Transport string `json:"transport"`
	Device    string `json:"device,omitempty"` // serial transport
	Baud      int    `json:"baud,omitempty"`
	Listen    string `json:"listen,omitempty"` // tcp transport

	Backend   string `json:"backend"`
	SPIPort   string `json:"spi_port,omitempty"` // spidev: periph port name, "" for the first
	CSPin     string `json:"cs_pin,omitempty"`   // spidev: GPIO name, ftdi: D4..D7 or C0..C7
	Frequency uint32 `json:"frequency,omitempty"`

	SimSize  int    `json:"sim_size,omitempty"`
	SimImage string `json:"sim_image,omitempty"` // file loaded into the simulated flash

	LogLevel string `json:"log_level,omitempty"`
}

// Load reads a JSON configuration file.
func Load(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a JSON configuration and fills in defaults.
func Parse(jsonData []byte) (*DaemonConfig, error) {
	var cfg DaemonConfig
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a daemon serving the simulated flash on a pty.
func Default() *DaemonConfig {
	cfg := &DaemonConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *DaemonConfig) {
	if cfg.Transport == "" {
		cfg.Transport = TransportPTY
	}
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:5566"
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSim
	}
	if cfg.CSPin == "" {
		switch cfg.Backend {
		case BackendFTDI:
			cfg.CSPin = "D4"
		case BackendSpidev:
			cfg.CSPin = "GPIO25"
		}
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = 1_000_000
	}
	if cfg.SimSize == 0 {
		cfg.SimSize = 1 << 20
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate checks the enumerated fields.
func (c *DaemonConfig) Validate() error {
	switch c.Transport {
	case TransportSerial:
		if c.Device == "" {
			return fmt.Errorf("config: serial transport needs a device")
		}
	case TransportPTY, TransportTCP:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	switch c.Backend {
	case BackendSpidev, BackendFTDI, BackendSim:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.SimSize < 0 || c.SimSize&(c.SimSize-1) != 0 {
		return fmt.Errorf("config: sim_size %d is not a power of two", c.SimSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name to a slog level. "trace" is one below debug.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "trace":
		return slog.LevelDebug - 1, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("config: unknown log level %q", s)
}
