// Package programmer is the host side of serprog: it drives a programmer
// over any byte stream and offers the SPI flash operations built on top of
// OSpiOp.
package programmer

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"vserprog/protocol"
)

// NakError reports a command the programmer answered with NAK.
type NakError struct {
	Op protocol.OpCode
}

func (e *NakError) Error() string {
	return fmt.Sprintf("serprog: %s refused by programmer", e.Op)
}

// UnsupportedError reports a command missing from the programmer's command
// map. It is never sent.
type UnsupportedError struct {
	Op protocol.OpCode
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("serprog: programmer does not implement %s", e.Op)
}

// Info is what Probe learns about a programmer. Zero fields were not
// advertised.
type Info struct {
	Version   uint16
	Name      string
	SerBuf    uint16
	OpBuf     uint16
	WrnMaxLen uint32
	Bus       protocol.BusType
	Cmds      protocol.CmdMap
}

// Config tunes a Client.
type Config struct {
	Timeout     time.Duration // per request
	BusyTimeout time.Duration // flash program/erase completion
	Logger      *slog.Logger
}

// Client talks to one serprog programmer.
type Client struct {
	t      *Transport
	cfg    Config
	logger *slog.Logger

	info   Info
	probed bool

	// Progress, when set, is called after each chunk of Read and Program.
	Progress func(done, total int)
}

// New starts a client on port. The client owns port and closes it.
func New(port io.ReadWriteCloser, cfg Config) *Client {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 30 * time.Second
	}
	return &Client{
		t:      NewTransport(port, cfg.Timeout),
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.t.Close()
}

// Info returns what the last Probe found.
func (c *Client) Info() Info {
	return c.info
}

// do sends cmd unless the programmer's command map rules it out.
func (c *Client) do(cmd protocol.Command) (protocol.Response, error) {
	op := cmd.OpCode()
	if c.probed && !c.info.Cmds.Has(op) {
		return nil, &UnsupportedError{Op: op}
	}
	resp, err := c.t.Do(cmd)
	if err != nil {
		return nil, err
	}
	if resp.Status() == protocol.Nak {
		return resp, &NakError{Op: op}
	}
	return resp, nil
}

// Sync flushes the link: it drops buffered input and repeats SyncNop until a
// well-formed reply arrives.
func (c *Client) Sync() error {
	var err error
	for attempt := 0; attempt < 8; attempt++ {
		c.t.Flush()
		var resp protocol.Response
		resp, err = c.t.DoTimeout(protocol.SyncNop{}, 250*time.Millisecond)
		if err == nil {
			if _, ok := resp.(protocol.SyncNopReply); ok {
				return nil
			}
		}
		if c.logger != nil {
			c.logger.Debug("sync retry", slog.Int("attempt", attempt), slog.Any("err", err))
		}
		if errors.Is(err, ErrClosed) {
			break
		}
	}
	return errors.Wrap(err, "sync failed")
}

// Probe synchronizes and queries the programmer's identity and limits.
// Afterwards commands the programmer does not advertise are refused locally.
func (c *Client) Probe() (Info, error) {
	c.probed = false
	if err := c.Sync(); err != nil {
		return Info{}, err
	}

	var info Info
	resp, err := c.do(protocol.QIface{})
	if err != nil {
		return Info{}, errors.Wrap(err, "query interface")
	}
	info.Version = resp.(protocol.QIfaceReply).Version
	if info.Version != protocol.InterfaceVersion {
		return Info{}, errors.Errorf("unsupported interface version %d", info.Version)
	}

	resp, err = c.do(protocol.QCmdMap{})
	if err != nil {
		return Info{}, errors.Wrap(err, "query command map")
	}
	info.Cmds = resp.(protocol.QCmdMapReply).Map
	c.info = info
	c.probed = true

	queries := []struct {
		cmd protocol.Command
		set func(protocol.Response)
	}{
		{protocol.QPgmName{}, func(r protocol.Response) { c.info.Name = r.(protocol.QPgmNameReply).NameString() }},
		{protocol.QSerBuf{}, func(r protocol.Response) { c.info.SerBuf = r.(protocol.QSerBufReply).Bytes }},
		{protocol.QOpBuf{}, func(r protocol.Response) { c.info.OpBuf = r.(protocol.QOpBufReply).Bytes }},
		{protocol.QWrnMaxLen{}, func(r protocol.Response) { c.info.WrnMaxLen = r.(protocol.QWrnMaxLenReply).Len }},
		{protocol.QBusType{}, func(r protocol.Response) { c.info.Bus = r.(protocol.QBusTypeReply).Bus }},
	}
	for _, q := range queries {
		if !info.Cmds.Has(q.cmd.OpCode()) {
			continue
		}
		resp, err := c.do(q.cmd)
		if err != nil {
			return c.info, errors.Wrapf(err, "query %s", q.cmd.OpCode())
		}
		q.set(resp)
	}
	return c.info, nil
}

// SetBus selects the buses the programmer should drive.
func (c *Client) SetBus(bus protocol.BusType) error {
	_, err := c.do(protocol.SBusType{Bus: bus})
	return err
}

// SetFrequency requests an SPI clock and returns the one applied.
func (c *Client) SetFrequency(hz uint32) (uint32, error) {
	resp, err := c.do(protocol.SSpiFreq{Hz: hz})
	if err != nil {
		return 0, err
	}
	return resp.(protocol.SSpiFreqReply).Hz, nil
}

// SetPins enables the programmer's SPI pins or releases them.
func (c *Client) SetPins(on bool) error {
	var state byte
	if on {
		state = 1
	}
	_, err := c.do(protocol.SPinState{State: state})
	return err
}

// writeLimit is the longest OSpiOp write the programmer accepts.
func (c *Client) writeLimit() int {
	if c.probed && c.info.WrnMaxLen > 0 {
		return int(c.info.WrnMaxLen)
	}
	return protocol.MaxSPIPayload
}

// readLimit is the longest OSpiOp read. serprog has no query for it in
// this profile, so it matches the write limit.
func (c *Client) readLimit() int {
	return c.writeLimit()
}

// SPIOp writes w and then reads rlen bytes within one chip select.
func (c *Client) SPIOp(w []byte, rlen int) ([]byte, error) {
	if len(w) > c.writeLimit() {
		return nil, errors.Errorf("spi write of %d bytes exceeds %d", len(w), c.writeLimit())
	}
	if rlen < 0 || rlen > c.readLimit() {
		return nil, errors.Errorf("spi read of %d bytes exceeds %d", rlen, c.readLimit())
	}
	resp, err := c.do(protocol.OSpiOp{ReadLen: uint32(rlen), Data: w})
	if err != nil {
		return nil, err
	}
	return resp.(protocol.SpiOpReply).Data, nil
}
