// Package flashsim is an in-memory 25-series SPI NOR flash. It implements
// both HAL interfaces the serprog core needs, so a Programmer can run with
// no hardware attached: the SPI side clocks bytes into the chip and the GPIO
// side drives its chip select.
package flashsim

import (
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"vserprog/core"
)

// Flash commands understood by the simulator.
const (
	CmdPageProgram  = 0x02
	CmdRead         = 0x03
	CmdWriteDisable = 0x04
	CmdReadStatus   = 0x05
	CmdWriteEnable  = 0x06
	CmdSectorErase  = 0x20
	CmdChipErase    = 0xC7
	CmdChipErase2   = 0x60
	CmdReadID       = 0x9F
	CmdReleasePD    = 0xAB
)

// Status register bits.
const (
	StatusBusy = 1 << 0
	StatusWEL  = 1 << 1
)

const (
	PageSize   = 256
	SectorSize = 4096
)

// Config describes the simulated part. Zero fields take the defaults of a
// Winbond W25Q80 (1 MiB).
type Config struct {
	Size      int
	JEDEC     [3]byte
	DeviceID  byte
	CS        core.GPIOPin
	BusyPolls int // status reads that report busy after a program or erase
}

// DefaultConfig returns the W25Q80 geometry with chip select on pin 5.
func DefaultConfig() Config {
	return Config{
		Size:      1 << 20,
		JEDEC:     [3]byte{0xEF, 0x40, 0x14},
		DeviceID:  0x13,
		CS:        5,
		BusyPolls: 1,
	}
}

var errReleased = errors.New("flashsim: bus used after release")

// Flash is the simulated chip. It is safe for concurrent use, so tests can
// inspect memory while a Programmer goroutine talks to it.
type Flash struct {
	mu  sync.Mutex
	cfg Config
	mem []byte

	status byte
	busy   int

	selected bool
	frame    []byte // bytes clocked in during the current selection

	enabled  bool
	floating bool
	rate     uint32
	gen      int // bumped on every ConfigureBus and ReleaseBus

	selects  int
	stray    int // bytes clocked while deselected
	commands []byte
}

// New creates an erased chip.
func New(cfg Config) *Flash {
	def := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.JEDEC == ([3]byte{}) {
		cfg.JEDEC = def.JEDEC
		cfg.DeviceID = def.DeviceID
	}
	if cfg.BusyPolls < 0 {
		cfg.BusyPolls = 0
	}
	f := &Flash{cfg: cfg, mem: make([]byte, cfg.Size), floating: true}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

// Size returns the chip capacity in bytes.
func (f *Flash) Size() int { return f.cfg.Size }

func (f *Flash) ConfigureBus(cfg core.SPIConfig) (drivers.SPI, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cfg.Rate == 0 {
		return nil, errors.New("flashsim: zero clock rate")
	}
	if cfg.Mode != core.FlashSPIMode && cfg.Mode != 3 {
		return nil, fmt.Errorf("flashsim: unsupported SPI mode %d", cfg.Mode)
	}
	f.gen++
	f.enabled = true
	f.rate = cfg.Rate
	return &bus{f: f, gen: f.gen}, nil
}

func (f *Flash) ReleaseBus() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.enabled = false
	return nil
}

func (f *Flash) ConfigureOutput(pin core.GPIOPin) error {
	if err := f.checkPin(pin); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.floating = false
	f.deselect()
	return nil
}

func (f *Flash) ConfigureFloating(pin core.GPIOPin) error {
	if err := f.checkPin(pin); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.floating = true
	f.deselect()
	return nil
}

func (f *Flash) SetPin(pin core.GPIOPin, value bool) error {
	if err := f.checkPin(pin); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.floating {
		return fmt.Errorf("flashsim: chip select %d is not an output", pin)
	}
	if value {
		f.deselect()
	} else if !f.selected {
		f.selected = true
		f.selects++
		f.frame = f.frame[:0]
	}
	return nil
}

func (f *Flash) checkPin(pin core.GPIOPin) error {
	if pin != f.cfg.CS {
		return fmt.Errorf("flashsim: pin %d is not wired (chip select is %d)", pin, f.cfg.CS)
	}
	return nil
}

// bus is the handle returned by ConfigureBus. It stops working once the
// flash is reconfigured or released.
type bus struct {
	f   *Flash
	gen int
}

func (b *bus) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	b.f.mu.Lock()
	defer b.f.mu.Unlock()
	if b.gen != b.f.gen || !b.f.enabled {
		return errReleased
	}
	for i := 0; i < n; i++ {
		in := byte(0xFF)
		if i < len(w) {
			in = w[i]
		}
		out := b.f.clock(in)
		if i < len(r) {
			r[i] = out
		}
	}
	return nil
}

func (b *bus) Transfer(w byte) (byte, error) {
	var buf [1]byte
	err := b.Tx([]byte{w}, buf[:])
	return buf[0], err
}

// clock shifts one byte in and returns the byte the chip drives out.
func (f *Flash) clock(in byte) byte {
	if !f.selected {
		f.stray++
		return 0xFF
	}
	f.frame = append(f.frame, in)
	i := len(f.frame) - 1
	if i == 0 {
		return 0xFF
	}
	op := f.frame[0]
	if f.busy > 0 && op != CmdReadStatus {
		return 0xFF
	}
	switch op {
	case CmdReadID:
		return f.cfg.JEDEC[(i-1)%3]
	case CmdReleasePD:
		if i >= 4 {
			return f.cfg.DeviceID
		}
	case CmdReadStatus:
		return f.readStatus()
	case CmdRead:
		if i >= 4 {
			addr := f.frameAddr() + i - 4
			return f.mem[addr%len(f.mem)]
		}
	}
	return 0xFF
}

func (f *Flash) readStatus() byte {
	st := f.status
	if f.busy > 0 {
		st |= StatusBusy
		f.busy--
	}
	return st
}

func (f *Flash) frameAddr() int {
	return int(f.frame[1])<<16 | int(f.frame[2])<<8 | int(f.frame[3])
}

// deselect raises chip select and commits the command clocked in, if any.
func (f *Flash) deselect() {
	if !f.selected {
		return
	}
	f.selected = false
	if len(f.frame) == 0 {
		return
	}
	op := f.frame[0]
	f.commands = append(f.commands, op)
	if f.busy > 0 {
		return
	}
	switch op {
	case CmdWriteEnable:
		if len(f.frame) == 1 {
			f.status |= StatusWEL
		}
	case CmdWriteDisable:
		if len(f.frame) == 1 {
			f.status &^= StatusWEL
		}
	case CmdPageProgram:
		if f.status&StatusWEL == 0 || len(f.frame) < 5 {
			return
		}
		f.program(f.frameAddr(), f.frame[4:])
		f.finishWrite()
	case CmdSectorErase:
		if f.status&StatusWEL == 0 || len(f.frame) != 4 {
			return
		}
		start := (f.frameAddr() % len(f.mem)) &^ (SectorSize - 1)
		fill(f.mem[start:min(start+SectorSize, len(f.mem))])
		f.finishWrite()
	case CmdChipErase, CmdChipErase2:
		if f.status&StatusWEL == 0 || len(f.frame) != 1 {
			return
		}
		fill(f.mem)
		f.finishWrite()
	}
}

// program applies page program semantics: bits can only go from 1 to 0 and
// the address wraps inside the page. Only the last page worth of data
// survives when more is sent.
func (f *Flash) program(addr int, data []byte) {
	addr %= len(f.mem)
	base := addr &^ (PageSize - 1)
	off := addr - base
	if len(data) > PageSize {
		off = (off + len(data) - PageSize) % PageSize
		data = data[len(data)-PageSize:]
	}
	for i, b := range data {
		a := base + (off+i)%PageSize
		if a < len(f.mem) {
			f.mem[a] &= b
		}
	}
}

func (f *Flash) finishWrite() {
	f.status &^= StatusWEL
	f.busy = f.cfg.BusyPolls
}

func fill(b []byte) {
	for i := range b {
		b[i] = 0xFF
	}
}
