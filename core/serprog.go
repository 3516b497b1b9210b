// Package core runs the serprog command loop: it stages transport bytes,
// decodes commands, executes them against the SPI link and sends responses.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"vserprog/protocol"
)

// Config configures a Programmer.
type Config struct {
	// Port is the host transport. Required.
	Port Port
	// SPI is the flash link the SPI commands drive. Required.
	SPI *SpiLink
	// Logger receives protocol traces. Nil disables logging.
	Logger *slog.Logger
	// Idle is called whenever a poll of the port made no progress. Defaults
	// to runtime.Gosched.
	Idle func()
}

// Programmer is the serprog dispatcher. It owns the command buffer and the
// SPI link for its whole life and handles one command at a time.
type Programmer struct {
	port     Port
	spi      *SpiLink
	registry *CommandRegistry
	logger   *slog.Logger
	idle     func()

	store [protocol.CommandBufferSize]byte
	buf   *protocol.RingBuffer
	out   protocol.ScratchOutput
	rx    [protocol.MaxSPIPayload]byte // device bytes of one OSpiOp
}

// NewProgrammer creates a Programmer with the SPI-only command set.
func NewProgrammer(cfg Config) (*Programmer, error) {
	if cfg.Port == nil {
		return nil, errors.New("serprog: nil port")
	}
	if cfg.SPI == nil {
		return nil, errors.New("serprog: nil SPI link")
	}
	p := &Programmer{
		port:     cfg.Port,
		spi:      cfg.SPI,
		registry: newSerprogRegistry(),
		logger:   cfg.Logger,
		idle:     cfg.Idle,
	}
	if p.idle == nil {
		p.idle = runtime.Gosched
	}
	p.buf = protocol.NewRingBuffer(p.store[:])
	return p, nil
}

func newSerprogRegistry() *CommandRegistry {
	r := NewCommandRegistry()
	r.Register(protocol.OpNop, (*Programmer).handleNop)
	r.Register(protocol.OpQIface, (*Programmer).handleQIface)
	r.Register(protocol.OpQCmdMap, (*Programmer).handleQCmdMap)
	r.Register(protocol.OpQPgmName, (*Programmer).handleQPgmName)
	r.Register(protocol.OpQSerBuf, (*Programmer).handleQSerBuf)
	r.Register(protocol.OpQBusType, (*Programmer).handleQBusType)
	r.Register(protocol.OpQOpBuf, (*Programmer).handleQOpBuf)
	r.Register(protocol.OpQWrnMaxLen, (*Programmer).handleQWrnMaxLen)
	r.Register(protocol.OpSyncNop, (*Programmer).handleSyncNop)
	r.Register(protocol.OpSBusType, (*Programmer).handleSBusType)
	r.Register(protocol.OpOSpiOp, (*Programmer).handleSpiOp)
	r.Register(protocol.OpSSpiFreq, (*Programmer).handleSSpiFreq)
	r.Register(protocol.OpSPinState, (*Programmer).handleSPinState)
	return r
}

// SPI returns the link the programmer drives.
func (p *Programmer) SPI() *SpiLink { return p.spi }

// Registry returns the active command set.
func (p *Programmer) Registry() *CommandRegistry { return p.registry }

// Buffer returns the command staging buffer.
func (p *Programmer) Buffer() *protocol.RingBuffer { return p.buf }

// Reset discards buffered input and releases the SPI pins, returning the
// programmer to its power-up state between host sessions.
func (p *Programmer) Reset() error {
	p.buf.Clear()
	p.out.Reset()
	return p.spi.Disable()
}

// ProcessCommand reads from the port until one whole command is buffered,
// consumes it and executes it.
//
// Errors wrapping ErrReadFail mean the buffered input can no longer be
// trusted; the caller clears it. A *NotImplementedError means the command
// was consumed but has no response. Context cancellation is only observed
// while waiting for input.
func (p *Programmer) ProcessCommand(ctx context.Context) (protocol.Response, error) {
	for {
		// Commands already buffered are served before the port is polled,
		// so input that arrived ahead of a disconnect is not lost.
		cmd, consumed, err := protocol.DecodeCommand(p.buf.Peek(p.buf.AvailableRead()))
		if err == nil {
			p.buf.Consume(consumed)
			p.debug("serprog:cmd", slog.String("op", cmd.OpCode().String()), slog.Int("len", consumed))
			return p.registry.Dispatch(p, cmd)
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			return nil, fmt.Errorf("%w: %w", ErrReadFail, err)
		}
		if p.buf.AvailableWrite() == 0 {
			return nil, fmt.Errorf("%w: command does not fit in %d byte buffer", ErrReadFail, p.buf.Len())
		}

		n, err := p.buf.WriteFrom(p.buf.AvailableWrite(), p.port.Read)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadFail, err)
		}
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p.idle()
		}
	}
}

// SendResponse writes data to the port, retrying partial writes until all of
// it is accepted. It has no timeout; only ctx cancellation or a port error
// ends it early.
func (p *Programmer) SendResponse(ctx context.Context, data []byte) error {
	sent := 0
	for sent < len(data) {
		n, err := p.port.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("%w: %d of %d bytes sent: %w", ErrWriteFail, sent, len(data), err)
		}
		sent += n
		if n == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.idle()
		}
	}
	return nil
}

// Step handles exactly one command end to end. Read failures clear the
// command buffer before returning.
func (p *Programmer) Step(ctx context.Context) error {
	resp, err := p.ProcessCommand(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrReadFail):
		p.buf.Clear()
		if !errors.Is(err, io.EOF) {
			p.warn("serprog:readfail", slog.String("err", err.Error()))
		}
		return err
	case IsNotImplemented(err):
		p.info("serprog:unsupported", slog.String("err", err.Error()))
		return err
	default:
		return err
	}

	if err := p.out.Encode(resp); err != nil {
		// Response sizes are fixed by the profile; this is a defect.
		p.logerr("serprog:encode", slog.String("op", resp.OpCode().String()), slog.String("err", err.Error()))
		return err
	}
	if err := p.SendResponse(ctx, p.out.Result()); err != nil {
		if !errors.Is(err, context.Canceled) {
			p.warn("serprog:writefail", slog.String("err", err.Error()))
		}
		return err
	}
	p.trace("serprog:resp", slog.String("op", resp.OpCode().String()), slog.String("status", resp.Status().String()))
	return nil
}

// Serve handles commands until ctx is done or the port reports io.EOF.
// Protocol level failures are logged and the loop continues.
func (p *Programmer) Serve(ctx context.Context) error {
	p.info("serprog:serve", slog.String("name", protocol.ProgrammerName), slog.Int("serbuf", p.buf.Len()))
	for {
		err := p.Step(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrReadFail) && !errors.Is(err, ErrWriteFail) && !IsNotImplemented(err) {
			return err
		}
	}
}

func (p *Programmer) handleNop(protocol.Command) protocol.Response {
	return protocol.NopReply{St: protocol.Ack}
}

func (p *Programmer) handleQIface(protocol.Command) protocol.Response {
	return protocol.QIfaceReply{Version: protocol.InterfaceVersion}
}

func (p *Programmer) handleQCmdMap(protocol.Command) protocol.Response {
	return protocol.QCmdMapReply{Map: p.registry.CmdMap()}
}

func (p *Programmer) handleQPgmName(protocol.Command) protocol.Response {
	return protocol.QPgmNameReply{Name: protocol.PgmName()}
}

func (p *Programmer) handleQSerBuf(protocol.Command) protocol.Response {
	return protocol.QSerBufReply{Bytes: uint16(p.buf.Len())}
}

func (p *Programmer) handleQBusType(protocol.Command) protocol.Response {
	return protocol.QBusTypeReply{Bus: protocol.SupportedBus}
}

func (p *Programmer) handleQOpBuf(protocol.Command) protocol.Response {
	return protocol.QOpBufReply{Bytes: protocol.OpBufSize}
}

func (p *Programmer) handleQWrnMaxLen(protocol.Command) protocol.Response {
	return protocol.QWrnMaxLenReply{Len: protocol.WriteNMaxLen}
}

func (p *Programmer) handleSyncNop(protocol.Command) protocol.Response {
	return protocol.SyncNopReply{}
}

// handleSBusType only validates; the SPI bus is the one bus there is.
func (p *Programmer) handleSBusType(cmd protocol.Command) protocol.Response {
	c := cmd.(protocol.SBusType)
	if c.Bus == 0 || !c.Bus.Subset(protocol.SupportedBus) {
		p.debug("serprog:busrefused", slog.String("bus", c.Bus.String()))
		return protocol.SBusTypeReply{St: protocol.Nak}
	}
	return protocol.SBusTypeReply{St: protocol.Ack}
}

func (p *Programmer) handleSpiOp(cmd protocol.Command) protocol.Response {
	c := cmd.(protocol.OSpiOp)
	if len(c.Data) > protocol.MaxSPIPayload || c.ReadLen > protocol.MaxSPIPayload {
		p.debug("serprog:spioversize", slog.Int("slen", len(c.Data)), slog.Uint64("rlen", uint64(c.ReadLen)))
		return protocol.SpiOpReply{St: protocol.Nak}
	}
	rx := p.rx[:c.ReadLen]
	if err := p.spi.TransferWithCS(c.Data, rx); err != nil {
		p.debug("serprog:spiop", slog.String("err", err.Error()))
		return protocol.SpiOpReply{St: protocol.Nak}
	}
	return protocol.SpiOpReply{St: protocol.Ack, Data: rx}
}

// handleSSpiFreq refuses 0 without touching the link; anything else
// reconfigures it, Acking the applied frequency.
func (p *Programmer) handleSSpiFreq(cmd protocol.Command) protocol.Response {
	c := cmd.(protocol.SSpiFreq)
	if c.Hz == 0 {
		return protocol.SSpiFreqReply{St: protocol.Nak}
	}
	if err := p.spi.Configure(c.Hz); err != nil {
		p.warn("serprog:spifreq", slog.Uint64("hz", uint64(c.Hz)), slog.String("err", err.Error()))
		return protocol.SSpiFreqReply{St: protocol.Nak}
	}
	p.debug("serprog:spifreq", slog.Uint64("hz", uint64(c.Hz)))
	return protocol.SSpiFreqReply{St: protocol.Ack, Hz: c.Hz}
}

func (p *Programmer) handleSPinState(cmd protocol.Command) protocol.Response {
	c := cmd.(protocol.SPinState)
	var err error
	if c.State == 0 {
		err = p.spi.Disable()
	} else if !p.spi.Enabled() {
		hz := p.spi.LastFrequency()
		if hz == 0 {
			hz = protocol.DefaultSPIFrequency
		}
		err = p.spi.Enable(hz)
	}
	if err != nil {
		p.warn("serprog:pinstate", slog.Int("state", int(c.State)), slog.String("err", err.Error()))
		return protocol.SPinStateReply{St: protocol.Nak}
	}
	return protocol.SPinStateReply{St: protocol.Ack}
}
