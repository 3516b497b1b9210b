package programmer

import (
	"time"

	"github.com/pkg/errors"
)

// 25-series SPI NOR opcodes.
const (
	flashPageProgram = 0x02
	flashRead        = 0x03
	flashReadStatus  = 0x05
	flashWriteEnable = 0x06
	flashSectorErase = 0x20
	flashChipErase   = 0xC7
	flashReadID      = 0x9F

	statusBusy = 0x01
	statusWEL  = 0x02

	FlashPageSize   = 256
	FlashSectorSize = 4096
)

// JEDECID is the manufacturer and device ID of a flash chip.
type JEDECID [3]byte

// Size returns the capacity encoded in the ID, or 0 if the capacity byte is
// out of the usual range.
func (id JEDECID) Size() int {
	if id[2] < 0x10 || id[2] > 0x1F {
		return 0
	}
	return 1 << id[2]
}

// ReadID returns the JEDEC ID of the attached chip.
func (c *Client) ReadID() (JEDECID, error) {
	var id JEDECID
	b, err := c.SPIOp([]byte{flashReadID}, len(id))
	if err != nil {
		return id, errors.Wrap(err, "read id")
	}
	copy(id[:], b)
	return id, nil
}

// ReadStatus returns status register 1.
func (c *Client) ReadStatus() (byte, error) {
	b, err := c.SPIOp([]byte{flashReadStatus}, 1)
	if err != nil {
		return 0, errors.Wrap(err, "read status")
	}
	return b[0], nil
}

func addrCmd(op byte, addr uint32) []byte {
	return []byte{op, byte(addr >> 16), byte(addr >> 8), byte(addr)}
}

// Read reads n bytes starting at addr.
func (c *Client) Read(addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	chunk := c.readLimit()
	for len(out) < n {
		size := min(chunk, n-len(out))
		at := addr + uint32(len(out))
		b, err := c.SPIOp(addrCmd(flashRead, at), size)
		if err != nil {
			return out, errors.Wrapf(err, "read at 0x%06x", at)
		}
		out = append(out, b...)
		c.progress(len(out), n)
	}
	return out, nil
}

func (c *Client) writeEnable() error {
	if _, err := c.SPIOp([]byte{flashWriteEnable}, 0); err != nil {
		return errors.Wrap(err, "write enable")
	}
	st, err := c.ReadStatus()
	if err != nil {
		return err
	}
	if st&statusWEL == 0 {
		return errors.Errorf("write enable latch not set (status 0x%02x)", st)
	}
	return nil
}

// WaitReady polls the status register until the busy bit clears.
func (c *Client) WaitReady() error {
	deadline := time.Now().Add(c.cfg.BusyTimeout)
	for {
		st, err := c.ReadStatus()
		if err != nil {
			return err
		}
		if st&statusBusy == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Errorf("flash still busy after %v", c.cfg.BusyTimeout)
		}
	}
}

// EraseSector erases the 4 KiB sector containing addr.
func (c *Client) EraseSector(addr uint32) error {
	if err := c.writeEnable(); err != nil {
		return err
	}
	if _, err := c.SPIOp(addrCmd(flashSectorErase, addr), 0); err != nil {
		return errors.Wrapf(err, "erase sector 0x%06x", addr)
	}
	return c.WaitReady()
}

// EraseChip erases the whole chip.
func (c *Client) EraseChip() error {
	if err := c.writeEnable(); err != nil {
		return err
	}
	if _, err := c.SPIOp([]byte{flashChipErase}, 0); err != nil {
		return errors.Wrap(err, "erase chip")
	}
	return c.WaitReady()
}

// Program writes data at addr, which must already be erased. Writes are
// split at page boundaries and at the programmer's write limit.
func (c *Client) Program(addr uint32, data []byte) error {
	maxData := c.writeLimit() - 4
	if maxData <= 0 {
		return errors.Errorf("write limit %d too small to program", c.writeLimit())
	}
	done := 0
	for done < len(data) {
		at := addr + uint32(done)
		size := min(FlashPageSize-int(at%FlashPageSize), maxData, len(data)-done)

		if err := c.writeEnable(); err != nil {
			return err
		}
		w := append(addrCmd(flashPageProgram, at), data[done:done+size]...)
		if _, err := c.SPIOp(w, 0); err != nil {
			return errors.Wrapf(err, "program 0x%06x", at)
		}
		if err := c.WaitReady(); err != nil {
			return err
		}
		done += size
		c.progress(done, len(data))
	}
	return nil
}

func (c *Client) progress(done, total int) {
	if c.Progress != nil {
		c.Progress(done, total)
	}
}
