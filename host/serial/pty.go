//go:build linux || darwin || freebsd

package serial

import (
	"fmt"
	"os"

	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

// PTY is the master side of a pseudo-terminal. Tools such as flashrom open
// the slave path as if it were a real serprog device.
type PTY struct {
	master *os.File
	slave  *os.File
}

// OpenPTY allocates a pseudo-terminal in raw mode.
//
// The slave stays open for the life of the PTY so the master keeps working
// while no client has the device open.
func OpenPTY() (*PTY, error) {
	master, slave, err := termios.Pty()
	if err != nil {
		return nil, fmt.Errorf("allocate pty: %w", err)
	}
	var attr unix.Termios
	if err := termios.Tcgetattr(slave.Fd(), &attr); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("pty attributes: %w", err)
	}
	termios.Cfmakeraw(&attr)
	if err := termios.Tcsetattr(slave.Fd(), termios.TCSANOW, &attr); err != nil {
		master.Close()
		slave.Close()
		return nil, fmt.Errorf("pty raw mode: %w", err)
	}
	return &PTY{master: master, slave: slave}, nil
}

// Name returns the slave device path clients should open.
func (p *PTY) Name() string {
	return p.slave.Name()
}

func (p *PTY) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *PTY) Write(b []byte) (int, error) { return p.master.Write(b) }

// Flush discards anything queued on the slave side.
func (p *PTY) Flush() error {
	return termios.Tcflush(p.slave.Fd(), termios.TCIOFLUSH)
}

// Close releases both ends.
func (p *PTY) Close() error {
	err := p.master.Close()
	if serr := p.slave.Close(); err == nil {
		err = serr
	}
	return err
}
