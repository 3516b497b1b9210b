// Command serprogd runs a serprog programmer on a host computer. flashrom
// talks to it over a serial line, a pseudo-terminal or TCP, and it drives a
// flash chip through Linux spidev, an FTDI FT232H or a simulated chip.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vserprog/core"
	"vserprog/host/config"
	"vserprog/host/serial"
	"vserprog/protocol"
)

// idleWait bounds how long the dispatcher sleeps while the host is quiet.
const idleWait = 20 * time.Millisecond

var (
	configPath  = flag.String("config", "", "JSON configuration file")
	transport   = flag.String("transport", "", "serial, pty or tcp")
	device      = flag.String("device", "", "Serial device for the serial transport")
	baud        = flag.Int("baud", 0, "Baud rate for the serial transport")
	listen      = flag.String("listen", "", "Listen address for the tcp transport")
	backendName = flag.String("backend", "", "spidev, ftdi or sim")
	spiPort     = flag.String("spi", "", "periph.io SPI port name (spidev backend)")
	csPin       = flag.String("cs", "", "Chip select pin name")
	freq        = flag.Uint("freq", 0, "SPI clock for the startup probe in Hz")
	simSize     = flag.Int("sim-size", 0, "Simulated flash size in bytes")
	simImage    = flag.String("sim-image", "", "File loaded into the simulated flash")
	logLevel    = flag.String("log", "", "Log level: trace, debug, info, warn or error")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := core.NewLogger(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("serprogd", slog.Any("err", err))
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and lets explicit flags
// override it.
func loadConfig() (*config.DaemonConfig, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Transport = *transport
		case "device":
			cfg.Device = *device
		case "baud":
			cfg.Baud = *baud
		case "listen":
			cfg.Listen = *listen
		case "backend":
			cfg.Backend = *backendName
		case "spi":
			cfg.SPIPort = *spiPort
		case "cs":
			cfg.CSPin = *csPin
		case "freq":
			cfg.Frequency = uint32(*freq)
		case "sim-size":
			cfg.SimSize = *simSize
		case "sim-image":
			cfg.SimImage = *simImage
		case "log":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.DaemonConfig, logger *slog.Logger) error {
	logger.Info("serprogd:start", slog.String("version", protocol.Version), slog.String("transport", cfg.Transport))
	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.close()

	link := core.NewSpiLink(be.spi, be.gpio, be.cs)
	probeChip(link, cfg.Frequency, logger)

	switch cfg.Transport {
	case config.TransportSerial:
		sc := serial.DefaultConfig(cfg.Device)
		sc.Baud = cfg.Baud
		port, err := serial.Open(sc)
		if err != nil {
			return err
		}
		defer port.Close()
		logger.Info("serprogd:serial", slog.String("device", cfg.Device), slog.String("backend", cfg.Backend))
		return serveSession(ctx, port, link, logger)

	case config.TransportPTY:
		pty, err := serial.OpenPTY()
		if err != nil {
			return err
		}
		defer pty.Close()
		logger.Info("serprogd:pty", slog.String("backend", cfg.Backend))
		fmt.Printf("flashrom -p serprog:dev=%s\n", pty.Name())
		return serveSession(ctx, pty, link, logger)

	case config.TransportTCP:
		return serveTCP(ctx, cfg.Listen, link, logger)
	}
	return fmt.Errorf("unknown transport %q", cfg.Transport)
}

// serveSession runs one dispatcher on rw until the host hangs up or ctx is
// cancelled, then leaves the flash pins released.
func serveSession(ctx context.Context, rw interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}, link *core.SpiLink, logger *slog.Logger) error {
	port := serial.NewPollPort(rw)
	defer port.Close()
	prog, err := core.NewProgrammer(core.Config{
		Port:   port,
		SPI:    link,
		Logger: logger,
		Idle:   func() { port.Wait(idleWait) },
	})
	if err != nil {
		return err
	}
	err = prog.Serve(ctx)
	if rerr := prog.Reset(); rerr != nil {
		logger.Warn("serprogd:reset", slog.Any("err", rerr))
	}
	return err
}

// serveTCP accepts one client at a time.
func serveTCP(ctx context.Context, addr string, link *core.SpiLink, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	logger.Info("serprogd:tcp", slog.String("listen", ln.Addr().String()))
	fmt.Printf("flashrom -p serprog:ip=%s\n", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		logger.Info("serprogd:client", slog.String("remote", conn.RemoteAddr().String()))
		err = serveSession(ctx, conn, link, logger)
		conn.Close()
		if err != nil && ctx.Err() == nil {
			logger.Warn("serprogd:session", slog.Any("err", err))
		}
		logger.Info("serprogd:client gone", slog.String("remote", conn.RemoteAddr().String()))
	}
}
