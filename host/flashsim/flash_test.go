package flashsim

import (
	"bytes"
	"testing"

	"vserprog/core"
)

func newLink(t *testing.T, f *Flash) *core.SpiLink {
	t.Helper()
	link := core.NewSpiLink(f, f, f.cfg.CS)
	if err := link.Enable(1_000_000); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	return link
}

func xfer(t *testing.T, link *core.SpiLink, w []byte, rlen int) []byte {
	t.Helper()
	r := make([]byte, rlen)
	if err := link.TransferWithCS(w, r); err != nil {
		t.Fatalf("TransferWithCS(% X): %v", w, err)
	}
	return r
}

func TestReadID(t *testing.T) {
	f := New(Config{})
	link := newLink(t, f)

	if got := xfer(t, link, []byte{CmdReadID}, 3); !bytes.Equal(got, []byte{0xEF, 0x40, 0x14}) {
		t.Errorf("RDID = % X", got)
	}
	if got := xfer(t, link, []byte{CmdReleasePD, 0, 0, 0}, 1); got[0] != 0x13 {
		t.Errorf("RES = %02X", got[0])
	}
	if f.Selected() {
		t.Error("chip left selected")
	}
	if f.Selects() != 2 {
		t.Errorf("selects = %d, want 2", f.Selects())
	}
}

func TestRead(t *testing.T) {
	f := New(Config{Size: 8192})
	f.Load(0x100, []byte{1, 2, 3, 4})
	link := newLink(t, f)

	got := xfer(t, link, []byte{CmdRead, 0x00, 0x01, 0x00}, 6)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 0xFF, 0xFF}) {
		t.Errorf("READ = % X", got)
	}
}

func TestProgramNeedsWriteEnable(t *testing.T) {
	f := New(Config{Size: 8192})
	link := newLink(t, f)

	xfer(t, link, []byte{CmdPageProgram, 0, 0, 0, 0x12}, 0)
	if got := f.Contents(0, 1); got[0] != 0xFF {
		t.Errorf("programmed without WEL: %02X", got[0])
	}

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	if f.Status()&StatusWEL == 0 {
		t.Fatal("WEL not set")
	}
	xfer(t, link, []byte{CmdPageProgram, 0, 0, 0, 0x12}, 0)
	if got := f.Contents(0, 1); got[0] != 0x12 {
		t.Errorf("programmed %02X, want 12", got[0])
	}
	if f.Status()&StatusWEL != 0 {
		t.Error("WEL still set after program")
	}
}

func TestProgramClearsBitsOnly(t *testing.T) {
	f := New(Config{Size: 8192})
	f.Load(0, []byte{0x0F})
	link := newLink(t, f)

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	xfer(t, link, []byte{CmdPageProgram, 0, 0, 0, 0xF3}, 0)
	if got := f.Contents(0, 1); got[0] != 0x03 {
		t.Errorf("got %02X, want 03", got[0])
	}
}

func TestProgramWrapsInPage(t *testing.T) {
	f := New(Config{Size: 8192})
	link := newLink(t, f)

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	xfer(t, link, []byte{CmdPageProgram, 0x00, 0x01, 0xFE, 0xA1, 0xA2, 0xA3}, 0)
	if got := f.Contents(0x1FE, 2); !bytes.Equal(got, []byte{0xA1, 0xA2}) {
		t.Errorf("page tail = % X", got)
	}
	if got := f.Contents(0x100, 1); got[0] != 0xA3 {
		t.Errorf("wrapped byte = %02X, want A3", got[0])
	}
	if got := f.Contents(0x200, 1); got[0] != 0xFF {
		t.Errorf("next page touched: %02X", got[0])
	}
}

func TestBusyPolling(t *testing.T) {
	f := New(Config{Size: 8192, BusyPolls: 2})
	link := newLink(t, f)

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	xfer(t, link, []byte{CmdSectorErase, 0, 0, 0}, 0)

	var seen []byte
	for i := 0; i < 3; i++ {
		seen = append(seen, xfer(t, link, []byte{CmdReadStatus}, 1)[0])
	}
	if !bytes.Equal(seen, []byte{StatusBusy, StatusBusy, 0}) {
		t.Errorf("status sequence % X", seen)
	}
}

func TestSectorErase(t *testing.T) {
	f := New(Config{Size: 3 * SectorSize, BusyPolls: 0})
	f.Load(0, make([]byte, 3*SectorSize))
	link := newLink(t, f)

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	xfer(t, link, []byte{CmdSectorErase, 0x00, 0x10, 0x23}, 0)

	if got := f.Contents(SectorSize-1, 1); got[0] != 0 {
		t.Errorf("previous sector erased")
	}
	if got := f.Contents(SectorSize, SectorSize); !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, SectorSize)) {
		t.Errorf("sector not erased")
	}
	if got := f.Contents(2*SectorSize, 1); got[0] != 0 {
		t.Errorf("next sector erased")
	}
}

func TestChipErase(t *testing.T) {
	for _, op := range []byte{CmdChipErase, CmdChipErase2} {
		f := New(Config{Size: SectorSize, BusyPolls: 0})
		f.Load(0, make([]byte, SectorSize))
		link := newLink(t, f)

		xfer(t, link, []byte{op}, 0)
		if got := f.Contents(0, 1); got[0] != 0 {
			t.Errorf("%02X: erased without WEL", op)
		}
		xfer(t, link, []byte{CmdWriteEnable}, 0)
		xfer(t, link, []byte{op}, 0)
		if got := f.Contents(0, SectorSize); !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, SectorSize)) {
			t.Errorf("%02X: chip not erased", op)
		}
	}
}

func TestWriteDisable(t *testing.T) {
	f := New(Config{Size: 8192})
	link := newLink(t, f)

	xfer(t, link, []byte{CmdWriteEnable}, 0)
	xfer(t, link, []byte{CmdWriteDisable}, 0)
	if f.Status()&StatusWEL != 0 {
		t.Error("WEL still set")
	}
}

func TestReleasedBus(t *testing.T) {
	f := New(Config{Size: 8192})
	bus, err := f.ConfigureBus(core.SPIConfig{Rate: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.ReleaseBus(); err != nil {
		t.Fatal(err)
	}
	if err := bus.Tx([]byte{CmdReadID}, nil); err == nil {
		t.Error("stale bus accepted a transfer")
	}
	if _, err := f.ConfigureBus(core.SPIConfig{}); err == nil {
		t.Error("zero rate accepted")
	}
}

func TestLinkDisableFloatsCS(t *testing.T) {
	f := New(Config{Size: 8192})
	link := newLink(t, f)
	if f.Floating() || !f.Enabled() || f.Rate() != 1_000_000 {
		t.Fatalf("after enable: floating=%v enabled=%v rate=%d", f.Floating(), f.Enabled(), f.Rate())
	}
	if err := link.Disable(); err != nil {
		t.Fatal(err)
	}
	if !f.Floating() || f.Enabled() {
		t.Errorf("after disable: floating=%v enabled=%v", f.Floating(), f.Enabled())
	}
	if err := f.SetPin(f.cfg.CS, false); err == nil {
		t.Error("floating chip select was driven")
	}
	if err := f.SetPin(9, false); err == nil {
		t.Error("unwired pin accepted")
	}
}

func TestStrayBytes(t *testing.T) {
	f := New(Config{Size: 8192})
	bus, err := f.ConfigureBus(core.SPIConfig{Rate: 1000})
	if err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := bus.Tx([]byte{CmdReadID, 0}, r); err != nil {
		t.Fatal(err)
	}
	if f.Stray() != 2 || !bytes.Equal(r, []byte{0xFF, 0xFF}) {
		t.Errorf("stray=%d r=% X", f.Stray(), r)
	}
	if len(f.Commands()) != 0 {
		t.Errorf("commands = % X", f.Commands())
	}
}
