package core

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"vserprog/protocol"
)

func cmdBytes(cmds ...protocol.Command) []byte {
	var b []byte
	for _, c := range cmds {
		b = protocol.AppendCommand(b, c)
	}
	return b
}

func step(t *testing.T, r *rig) {
	t.Helper()
	if err := r.prog.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"iface", []byte{0x01}, []byte{0x06, 0x01, 0x00}},
		{"sync", []byte{0x10}, []byte{0x06, 0x15}},
		{"nop", []byte{0x00}, []byte{0x06}},
		{"spi op while disabled", []byte{0x13, 0x02, 0x00, 0x00, 0x02, 0x00, 0x00, 0xAA, 0xBB}, []byte{0x15}},
		{"freq zero", []byte{0x14, 0, 0, 0, 0}, []byte{0x15, 0, 0, 0, 0}},
		{"freq 1MHz", []byte{0x14, 0x40, 0x42, 0x0F, 0x00}, []byte{0x06, 0x40, 0x42, 0x0F, 0x00}},
		{"serbuf", []byte{0x04}, []byte{0x06, 0x00, 0x02}},
		{"opbuf", []byte{0x07}, []byte{0x06, 0x00, 0x01}},
		{"wrnmaxlen", []byte{0x08}, []byte{0x06, 0x00, 0x01, 0x00}},
		{"bustype", []byte{0x05}, []byte{0x06, 0x08}},
		{"select spi", []byte{0x12, 0x08}, []byte{0x06}},
		{"select lpc", []byte{0x12, 0x02}, []byte{0x15}},
		{"select nothing", []byte{0x12, 0x00}, []byte{0x15}},
		{"select spi and parallel", []byte{0x12, 0x09}, []byte{0x15}},
		{"pins off", []byte{0x15, 0x00}, []byte{0x06}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(tt.in...)
			step(t, r)
			if got := r.port.out.Bytes(); !bytes.Equal(got, tt.want) {
				t.Errorf("response % X, want % X", got, tt.want)
			}
			if r.prog.Buffer().AvailableRead() != 0 {
				t.Errorf("%d bytes left unconsumed", r.prog.Buffer().AvailableRead())
			}
		})
	}
}

func TestSSpiFreqStates(t *testing.T) {
	r := newRig(cmdBytes(protocol.SSpiFreq{Hz: 0})...)
	step(t, r)
	if r.link.Enabled() || len(r.spi.configs) != 0 {
		t.Errorf("frequency 0 touched the link: enabled=%v configs=%d", r.link.Enabled(), len(r.spi.configs))
	}

	r = newRig(cmdBytes(protocol.SSpiFreq{Hz: 1_000_000}, protocol.SSpiFreq{Hz: 4_000_000})...)
	step(t, r)
	if !r.link.Enabled() || r.link.Frequency() != 1_000_000 {
		t.Errorf("after 1MHz: enabled=%v freq=%d", r.link.Enabled(), r.link.Frequency())
	}
	step(t, r)
	if r.link.Frequency() != 4_000_000 || r.spi.releases != 1 {
		t.Errorf("after 4MHz: freq=%d releases=%d", r.link.Frequency(), r.spi.releases)
	}
}

func TestSSpiFreqFailure(t *testing.T) {
	r := newRig(cmdBytes(protocol.SSpiFreq{Hz: 1_000_000})...)
	r.spi.configureErr = errors.New("unsupported rate")
	step(t, r)
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x15, 0, 0, 0, 0}) {
		t.Errorf("response % X", got)
	}
}

func TestSPinState(t *testing.T) {
	r := newRig(cmdBytes(
		protocol.SPinState{State: 1},
		protocol.SPinState{State: 0},
		protocol.SSpiFreq{Hz: 2_000_000},
		protocol.SPinState{State: 0},
		protocol.SPinState{State: 1},
	)...)

	step(t, r)
	if r.link.Frequency() != protocol.DefaultSPIFrequency {
		t.Errorf("pins on without frequency: freq=%d", r.link.Frequency())
	}
	step(t, r)
	if r.link.Enabled() {
		t.Error("pins off left link enabled")
	}
	step(t, r)
	step(t, r)
	step(t, r)
	if r.link.Frequency() != 2_000_000 {
		t.Errorf("pins on after SSpiFreq: freq=%d, want 2MHz", r.link.Frequency())
	}
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x06, 0x06, 0x06, 0x80, 0x84, 0x1E, 0x00, 0x06, 0x06}) {
		t.Errorf("responses % X", got)
	}
}

func TestSPinStateEnableFailure(t *testing.T) {
	r := newRig(cmdBytes(protocol.SPinState{State: 1})...)
	r.spi.configureErr = errors.New("pins busy")
	step(t, r)
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x15}) {
		t.Errorf("response % X", got)
	}
}

func TestSpiOpReadsDevice(t *testing.T) {
	r := newRig(cmdBytes(
		protocol.SSpiFreq{Hz: 1_000_000},
		protocol.OSpiOp{ReadLen: 3, Data: []byte{0x9F}},
	)...)
	r.spi.bus.reply = []byte{0xEF, 0x40, 0x14}

	step(t, r)
	r.port.out.Reset()
	r.gpio.events = nil
	step(t, r)

	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x06, 0xEF, 0x40, 0x14}) {
		t.Errorf("response % X", got)
	}
	if !bytes.Equal(r.spi.bus.written, []byte{0x9F}) {
		t.Errorf("shifted out % X", r.spi.bus.written)
	}
	if r.gpio.count("low") != 1 || r.gpio.count("high") != 1 {
		t.Errorf("chip select events %v", r.gpio.events)
	}
}

func TestSpiOpTransferFailure(t *testing.T) {
	r := newRig(cmdBytes(
		protocol.SSpiFreq{Hz: 1_000_000},
		protocol.OSpiOp{ReadLen: 2, Data: []byte{0x05}},
		protocol.QIface{},
	)...)
	r.spi.bus.failTx = 1

	step(t, r)
	r.port.out.Reset()
	step(t, r)
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x15}) {
		t.Errorf("response % X", got)
	}
	// The session goes on.
	r.port.out.Reset()
	step(t, r)
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x06, 0x01, 0x00}) {
		t.Errorf("response after failure % X", got)
	}
}

func TestSpiOpOversize(t *testing.T) {
	big := make([]byte, protocol.MaxSPIPayload+1)
	tests := []struct {
		name string
		cmd  protocol.OSpiOp
	}{
		{"write too long", protocol.OSpiOp{Data: big}},
		{"read too long", protocol.OSpiOp{ReadLen: protocol.MaxSPIPayload + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(cmdBytes(protocol.SSpiFreq{Hz: 1_000_000}, tt.cmd)...)
			step(t, r)
			r.port.out.Reset()
			step(t, r)
			if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x15}) {
				t.Errorf("response % X", got)
			}
			if r.spi.bus.calls != 0 {
				t.Error("oversized op reached the bus")
			}
		})
	}
}

func TestSpiOpLargest(t *testing.T) {
	reply := bytes.Repeat([]byte{0x5A}, protocol.MaxSPIPayload)
	r := newRig(cmdBytes(
		protocol.SSpiFreq{Hz: 1_000_000},
		protocol.OSpiOp{ReadLen: protocol.MaxSPIPayload, Data: bytes.Repeat([]byte{0x02}, protocol.MaxSPIPayload)},
	)...)
	r.spi.bus.reply = reply
	step(t, r)
	r.port.out.Reset()
	step(t, r)

	got := r.port.out.Bytes()
	if len(got) != 1+protocol.MaxSPIPayload || got[0] != 0x06 || !bytes.Equal(got[1:], reply) {
		t.Errorf("response of %d bytes, status 0x%02X", len(got), got[0])
	}
}

func TestQCmdMapMatchesHandlers(t *testing.T) {
	r := newRig(0x02)
	step(t, r)
	got := r.port.out.Bytes()
	if len(got) != 33 || got[0] != 0x06 {
		t.Fatalf("response % X", got)
	}
	var m protocol.CmdMap
	copy(m[:], got[1:])

	for op := 0; op < protocol.NumOpCodes; op++ {
		_, handled := r.prog.Registry().GetCommand(protocol.OpCode(op))
		if m.Has(protocol.OpCode(op)) != handled {
			t.Errorf("%v: advertised=%v handled=%v", protocol.OpCode(op), m.Has(protocol.OpCode(op)), handled)
		}
	}
	for _, op := range []protocol.OpCode{protocol.OpSyncNop, protocol.OpOSpiOp, protocol.OpSSpiFreq, protocol.OpSPinState} {
		if !m.Has(op) {
			t.Errorf("%v not advertised", op)
		}
	}
	for _, op := range []protocol.OpCode{protocol.OpRByte, protocol.OpOWriteN, protocol.OpQChipSize, protocol.OpOExec} {
		if m.Has(op) {
			t.Errorf("%v advertised", op)
		}
	}
}

func TestQPgmName(t *testing.T) {
	r := newRig(0x03)
	step(t, r)
	want := append([]byte{0x06}, "vserprog"...)
	want = append(want, make([]byte, 8)...)
	if got := r.port.out.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("response % X", got)
	}
}

func TestNotImplemented(t *testing.T) {
	r := newRig(cmdBytes(protocol.RByte{Addr: 0x100}, protocol.SyncNop{})...)

	err := r.prog.Step(context.Background())
	var ni *NotImplementedError
	if !errors.As(err, &ni) || ni.Op != protocol.OpRByte {
		t.Fatalf("err = %v, want NotImplemented RByte", err)
	}
	if r.port.out.Len() != 0 {
		t.Errorf("response sent for unimplemented command: % X", r.port.out.Bytes())
	}

	step(t, r)
	if got := r.port.out.Bytes(); !bytes.Equal(got, []byte{0x06, 0x15}) {
		t.Errorf("next command response % X", got)
	}
}

func TestDecodeFailureClearsBuffer(t *testing.T) {
	r := newRig(0x42, 0x01, 0x10)

	err := r.prog.Step(context.Background())
	if !errors.Is(err, ErrReadFail) || !protocol.IsDecodeError(err) {
		t.Fatalf("err = %v, want ReadFail wrapping DecodeError", err)
	}
	if !r.prog.Buffer().IsEmpty() || r.prog.Buffer().AvailableWrite() != protocol.CommandBufferSize {
		t.Error("buffer not cleared after decode failure")
	}
	if r.port.out.Len() != 0 {
		t.Errorf("response sent: % X", r.port.out.Bytes())
	}
}

func TestReadErrorIsReadFail(t *testing.T) {
	r := newRig()
	r.port.readErr = errors.New("usb reset")

	err := r.prog.Step(context.Background())
	if !errors.Is(err, ErrReadFail) || !errors.Is(err, r.port.readErr) {
		t.Errorf("err = %v", err)
	}
}

func TestOversizedCommandIsReadFail(t *testing.T) {
	// OWriteN announcing more payload than the whole buffer holds.
	in := []byte{0x0D, 0x58, 0x02, 0x00, 0x00, 0x00, 0x00}
	in = append(in, make([]byte, 600)...)
	r := newRig(in...)

	err := r.prog.Step(context.Background())
	if !errors.Is(err, ErrReadFail) {
		t.Fatalf("err = %v, want ReadFail", err)
	}
	if !r.prog.Buffer().IsEmpty() {
		t.Error("buffer not cleared")
	}
}

func TestFragmentedInput(t *testing.T) {
	r := newRig(cmdBytes(protocol.SSpiFreq{Hz: 1_000_000}, protocol.QIface{})...)
	r.port.chunk = 1
	idles := 0
	r.prog.idle = func() { idles++ }

	step(t, r)
	step(t, r)
	want := []byte{0x06, 0x40, 0x42, 0x0F, 0x00, 0x06, 0x01, 0x00}
	if got := r.port.out.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("responses % X", got)
	}
	if idles != 0 {
		t.Errorf("idled %d times while data kept arriving", idles)
	}
}

func TestPartialWrites(t *testing.T) {
	r := newRig(0x02)
	r.port.maxWrite = 5
	r.port.zeroes = 3
	step(t, r)
	if r.port.out.Len() != 33 {
		t.Errorf("sent %d bytes, want 33", r.port.out.Len())
	}
}

func TestWriteFail(t *testing.T) {
	r := newRig(0x01)
	r.port.writeErr = errors.New("host gone")

	err := r.prog.Step(context.Background())
	if !errors.Is(err, ErrWriteFail) {
		t.Errorf("err = %v, want WriteFail", err)
	}
}

func TestServeUntilEOF(t *testing.T) {
	r := newRig(cmdBytes(
		protocol.QIface{},
		protocol.RByte{Addr: 1},
		protocol.SyncNop{},
	)...)
	r.port.eof = true

	if err := r.prog.Serve(context.Background()); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	want := []byte{0x06, 0x01, 0x00, 0x06, 0x15}
	if got := r.port.out.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("responses % X, want % X", got, want)
	}
}

func TestServeCancel(t *testing.T) {
	r := newRig()
	ctx, cancel := context.WithCancel(context.Background())
	r.prog.idle = cancel

	if err := r.prog.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve = %v, want context.Canceled", err)
	}
}

func TestReset(t *testing.T) {
	r := newRig(0x14, 0x40, 0x42, 0x0F, 0x00, 0x01)
	r.port.chunk = 6
	step(t, r)
	if r.prog.Buffer().AvailableRead() != 1 || !r.link.Enabled() {
		t.Fatalf("setup: buffered=%d enabled=%v", r.prog.Buffer().AvailableRead(), r.link.Enabled())
	}
	if err := r.prog.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !r.prog.Buffer().IsEmpty() || r.link.Enabled() {
		t.Error("Reset left state behind")
	}
}

func TestNewProgrammerValidates(t *testing.T) {
	if _, err := NewProgrammer(Config{SPI: NewSpiLink(&fakeSPI{}, newFakeGPIO(), 0)}); err == nil {
		t.Error("nil port accepted")
	}
	if _, err := NewProgrammer(Config{Port: &fakePort{}}); err == nil {
		t.Error("nil SPI link accepted")
	}
}

func TestLogging(t *testing.T) {
	var logs bytes.Buffer
	r := newRig(cmdBytes(protocol.RByte{Addr: 0}, protocol.QIface{})...)
	r.prog.logger = NewLogger(&logs, LevelTrace)

	if err := r.prog.Step(context.Background()); !IsNotImplemented(err) {
		t.Fatalf("err = %v", err)
	}
	step(t, r)

	for _, want := range []string{"serprog:unsupported", "serprog:cmd", "op=QIface", "serprog:resp", "status=ACK"} {
		if !bytes.Contains(logs.Bytes(), []byte(want)) {
			t.Errorf("log missing %q:\n%s", want, logs.String())
		}
	}
}
