// Package protocol implements the serprog wire protocol: the command staging
// buffer, the streaming command decoder and the response encoder.
package protocol

import "fmt"

// Version represents the vserprog firmware version
const Version = "0.1.0"

// Status bytes leading every response.
const (
	Ack Status = 0x06
	Nak Status = 0x15
)

// Protocol profile. Every advertised size below is derived from these values so
// QSerBuf, QOpBuf and QWrnMaxLen always agree with what the dispatcher accepts.
const (
	InterfaceVersion = 0x01

	CommandBufferSize = 512 // RingBuffer capacity, advertised by QSerBuf
	MaxSPIPayload     = 256 // max slen and rlen of OSpiOp

	OpBufSize    = MaxSPIPayload
	WriteNMaxLen = MaxSPIPayload

	ProgrammerName = "vserprog"

	SupportedBus = BusSPI

	DefaultSPIFrequency = 1_000_000 // Hz, used when pins are driven before any SSpiFreq
)

// Wire layout sizes.
const (
	OpCodeSize  = 1
	AddressSize = 3
	LengthSize  = 3
	DelaySize   = 4
	FreqSize    = 4

	CmdMapSize  = 32
	PgmNameSize = 16

	// MaxCommandSize is the longest command the profile accepts in one piece.
	MaxCommandSize = OpCodeSize + 2*LengthSize + MaxSPIPayload

	// MaxResponseSize is the longest response the profile ever encodes.
	MaxResponseSize = 1 + MaxSPIPayload

	// ReplyFiller is clocked out while reading the device side of an SPI op.
	ReplyFiller = 0xFF
)

// Status is the leading byte of a response.
type Status uint8

func (s Status) String() string {
	switch s {
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	default:
		return fmt.Sprintf("status(0x%02x)", uint8(s))
	}
}

// PgmName returns the programmer name NUL-padded to the wire width.
func PgmName() (name [PgmNameSize]byte) {
	copy(name[:], ProgrammerName)
	return name
}
