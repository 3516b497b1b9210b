package protocol

import "fmt"

// OpCode identifies a serprog command. Valid codes are 0x00 through 0x15.
type OpCode uint8

const (
	OpNop        OpCode = 0x00 // no-op
	OpQIface     OpCode = 0x01 // query protocol version
	OpQCmdMap    OpCode = 0x02 // query supported command bitmap
	OpQPgmName   OpCode = 0x03 // query programmer name
	OpQSerBuf    OpCode = 0x04 // query serial buffer size
	OpQBusType   OpCode = 0x05 // query supported bus types
	OpQChipSize  OpCode = 0x06 // query supported chip size
	OpQOpBuf     OpCode = 0x07 // query operation buffer size
	OpQWrnMaxLen OpCode = 0x08 // query max write-n length
	OpRByte      OpCode = 0x09 // read a single byte
	OpRNBytes    OpCode = 0x0A // read n bytes
	OpOInit      OpCode = 0x0B // initialize operation buffer
	OpOWriteB    OpCode = 0x0C // write a byte to the operation buffer
	OpOWriteN    OpCode = 0x0D // write n bytes to the operation buffer
	OpODelay     OpCode = 0x0E // queue a delay
	OpOExec      OpCode = 0x0F // execute the operation buffer
	OpSyncNop    OpCode = 0x10 // synchronization probe
	OpQRdnMaxLen OpCode = 0x11 // query max read-n length
	OpSBusType   OpCode = 0x12 // select bus type
	OpOSpiOp     OpCode = 0x13 // full-duplex SPI operation
	OpSSpiFreq   OpCode = 0x14 // set SPI clock frequency
	OpSPinState  OpCode = 0x15 // drive or release the bus pins

	// NumOpCodes is the size of the opcode space.
	NumOpCodes = int(OpSPinState) + 1
)

var opNames = [NumOpCodes]string{
	OpNop:        "Nop",
	OpQIface:     "QIface",
	OpQCmdMap:    "QCmdMap",
	OpQPgmName:   "QPgmName",
	OpQSerBuf:    "QSerBuf",
	OpQBusType:   "QBusType",
	OpQChipSize:  "QChipSize",
	OpQOpBuf:     "QOpBuf",
	OpQWrnMaxLen: "QWrnMaxLen",
	OpRByte:      "RByte",
	OpRNBytes:    "RNBytes",
	OpOInit:      "OInit",
	OpOWriteB:    "OWriteB",
	OpOWriteN:    "OWriteN",
	OpODelay:     "ODelay",
	OpOExec:      "OExec",
	OpSyncNop:    "SyncNop",
	OpQRdnMaxLen: "QRdnMaxLen",
	OpSBusType:   "SBusType",
	OpOSpiOp:     "OSpiOp",
	OpSSpiFreq:   "SSpiFreq",
	OpSPinState:  "SPinState",
}

// ParseOpCode maps a wire byte to an OpCode. Bytes outside the known set are
// rejected instead of being converted.
func ParseOpCode(b byte) (OpCode, bool) {
	switch op := OpCode(b); op {
	case OpNop, OpQIface, OpQCmdMap, OpQPgmName, OpQSerBuf, OpQBusType,
		OpQChipSize, OpQOpBuf, OpQWrnMaxLen, OpRByte, OpRNBytes, OpOInit,
		OpOWriteB, OpOWriteN, OpODelay, OpOExec, OpSyncNop, OpQRdnMaxLen,
		OpSBusType, OpOSpiOp, OpSSpiFreq, OpSPinState:
		return op, true
	}
	return 0, false
}

// Valid reports whether op is part of the protocol.
func (op OpCode) Valid() bool {
	_, ok := ParseOpCode(byte(op))
	return ok
}

func (op OpCode) String() string {
	if !op.Valid() {
		return fmt.Sprintf("OpCode(0x%02x)", uint8(op))
	}
	return opNames[op]
}

// CmdMap is the QCmdMap bitmap: bit n of byte n/8 is set when opcode n is
// supported.
type CmdMap [CmdMapSize]byte

// Set marks op as supported.
func (m *CmdMap) Set(op OpCode) {
	m[op/8] |= 1 << (op % 8)
}

// Has reports whether op is marked as supported.
func (m *CmdMap) Has(op OpCode) bool {
	return m[op/8]&(1<<(op%8)) != 0
}

// BusType is a bitmask of buses the host selects or the device supports.
type BusType uint8

const (
	BusParallel BusType = 1 << 0
	BusLPC      BusType = 1 << 1
	BusFWH      BusType = 1 << 2
	BusSPI      BusType = 1 << 3
)

// Subset reports whether every bus in b is present in of.
func (b BusType) Subset(of BusType) bool {
	return b&^of == 0
}

func (b BusType) String() string {
	if b == 0 {
		return "none"
	}
	s := ""
	for _, bus := range []struct {
		bit  BusType
		name string
	}{{BusParallel, "parallel"}, {BusLPC, "lpc"}, {BusFWH, "fwh"}, {BusSPI, "spi"}} {
		if b&bus.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += bus.name
		}
	}
	if rest := b &^ (BusParallel | BusLPC | BusFWH | BusSPI); rest != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("0x%02x", uint8(rest))
	}
	return s
}

// Address is a 24-bit offset into the target flash, carried in 32 bits.
type Address uint32

// MaxAddress is the largest offset a 3-byte address field can carry.
const MaxAddress Address = 1<<24 - 1

// Valid reports whether a fits in the 3-byte wire field.
func (a Address) Valid() bool {
	return a <= MaxAddress
}
