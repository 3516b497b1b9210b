package protocol

// Command is a decoded serprog command. There is one concrete type per OpCode;
// the set is closed.
type Command interface {
	OpCode() OpCode

	// payloadLen is the encoded size without the opcode byte.
	payloadLen() int
	appendPayload(dst []byte) []byte
}

type (
	Nop        struct{}
	QIface     struct{}
	QCmdMap    struct{}
	QPgmName   struct{}
	QSerBuf    struct{}
	QBusType   struct{}
	QChipSize  struct{}
	QOpBuf     struct{}
	QWrnMaxLen struct{}
	OInit      struct{}
	OExec      struct{}
	SyncNop    struct{}
	QRdnMaxLen struct{}

	// RByte reads one byte at Addr.
	RByte struct {
		Addr Address
	}

	// RNBytes reads N bytes starting at Addr.
	RNBytes struct {
		Addr Address
		N    uint32
	}

	// OWriteB queues a single byte write.
	OWriteB struct {
		Addr Address
		Data byte
	}

	// OWriteN queues a write of len(Data) bytes. Data aliases the decoder input.
	OWriteN struct {
		Addr Address
		Data []byte
	}

	// ODelay queues a delay in microseconds.
	ODelay struct {
		Micros uint32
	}

	// SBusType selects the bus to talk to.
	SBusType struct {
		Bus BusType
	}

	// OSpiOp shifts Data out with chip-select asserted, then clocks ReadLen
	// bytes in. Data aliases the decoder input and is only valid until the
	// input buffer is written again.
	OSpiOp struct {
		ReadLen uint32
		Data    []byte
	}

	// SSpiFreq sets the SPI clock. Zero requests no change and is refused.
	SSpiFreq struct {
		Hz uint32
	}

	// SPinState releases (0) or drives (non-zero) the bus pins.
	SPinState struct {
		State uint8
	}
)

func (Nop) OpCode() OpCode        { return OpNop }
func (QIface) OpCode() OpCode     { return OpQIface }
func (QCmdMap) OpCode() OpCode    { return OpQCmdMap }
func (QPgmName) OpCode() OpCode   { return OpQPgmName }
func (QSerBuf) OpCode() OpCode    { return OpQSerBuf }
func (QBusType) OpCode() OpCode   { return OpQBusType }
func (QChipSize) OpCode() OpCode  { return OpQChipSize }
func (QOpBuf) OpCode() OpCode     { return OpQOpBuf }
func (QWrnMaxLen) OpCode() OpCode { return OpQWrnMaxLen }
func (RByte) OpCode() OpCode      { return OpRByte }
func (RNBytes) OpCode() OpCode    { return OpRNBytes }
func (OInit) OpCode() OpCode      { return OpOInit }
func (OWriteB) OpCode() OpCode    { return OpOWriteB }
func (OWriteN) OpCode() OpCode    { return OpOWriteN }
func (ODelay) OpCode() OpCode     { return OpODelay }
func (OExec) OpCode() OpCode      { return OpOExec }
func (SyncNop) OpCode() OpCode    { return OpSyncNop }
func (QRdnMaxLen) OpCode() OpCode { return OpQRdnMaxLen }
func (SBusType) OpCode() OpCode   { return OpSBusType }
func (OSpiOp) OpCode() OpCode     { return OpOSpiOp }
func (SSpiFreq) OpCode() OpCode   { return OpSSpiFreq }
func (SPinState) OpCode() OpCode  { return OpSPinState }

func (Nop) payloadLen() int        { return 0 }
func (QIface) payloadLen() int     { return 0 }
func (QCmdMap) payloadLen() int    { return 0 }
func (QPgmName) payloadLen() int   { return 0 }
func (QSerBuf) payloadLen() int    { return 0 }
func (QBusType) payloadLen() int   { return 0 }
func (QChipSize) payloadLen() int  { return 0 }
func (QOpBuf) payloadLen() int     { return 0 }
func (QWrnMaxLen) payloadLen() int { return 0 }
func (RByte) payloadLen() int      { return AddressSize }
func (RNBytes) payloadLen() int    { return AddressSize + LengthSize }
func (OInit) payloadLen() int      { return 0 }
func (OWriteB) payloadLen() int    { return AddressSize + 1 }
func (c OWriteN) payloadLen() int  { return LengthSize + AddressSize + len(c.Data) }
func (ODelay) payloadLen() int     { return DelaySize }
func (OExec) payloadLen() int      { return 0 }
func (SyncNop) payloadLen() int    { return 0 }
func (QRdnMaxLen) payloadLen() int { return 0 }
func (SBusType) payloadLen() int   { return 1 }
func (c OSpiOp) payloadLen() int   { return 2*LengthSize + len(c.Data) }
func (SSpiFreq) payloadLen() int   { return FreqSize }
func (SPinState) payloadLen() int  { return 1 }

func (Nop) appendPayload(dst []byte) []byte        { return dst }
func (QIface) appendPayload(dst []byte) []byte     { return dst }
func (QCmdMap) appendPayload(dst []byte) []byte    { return dst }
func (QPgmName) appendPayload(dst []byte) []byte   { return dst }
func (QSerBuf) appendPayload(dst []byte) []byte    { return dst }
func (QBusType) appendPayload(dst []byte) []byte   { return dst }
func (QChipSize) appendPayload(dst []byte) []byte  { return dst }
func (QOpBuf) appendPayload(dst []byte) []byte     { return dst }
func (QWrnMaxLen) appendPayload(dst []byte) []byte { return dst }
func (OInit) appendPayload(dst []byte) []byte      { return dst }
func (OExec) appendPayload(dst []byte) []byte      { return dst }
func (SyncNop) appendPayload(dst []byte) []byte    { return dst }
func (QRdnMaxLen) appendPayload(dst []byte) []byte { return dst }

func (c RByte) appendPayload(dst []byte) []byte {
	return appendUint24(dst, uint32(c.Addr))
}

func (c RNBytes) appendPayload(dst []byte) []byte {
	dst = appendUint24(dst, uint32(c.Addr))
	return appendUint24(dst, c.N)
}

func (c OWriteB) appendPayload(dst []byte) []byte {
	dst = appendUint24(dst, uint32(c.Addr))
	return append(dst, c.Data)
}

// Wire order for OWriteN is length first, then address.
func (c OWriteN) appendPayload(dst []byte) []byte {
	dst = appendUint24(dst, uint(len(c.Data)))
	dst = appendUint24(dst, uint32(c.Addr))
	return append(dst, c.Data...)
}

func (c ODelay) appendPayload(dst []byte) []byte {
	return appendUint32(dst, c.Micros)
}

func (c SBusType) appendPayload(dst []byte) []byte {
	return append(dst, byte(c.Bus))
}

func (c OSpiOp) appendPayload(dst []byte) []byte {
	dst = appendUint24(dst, uint(len(c.Data)))
	dst = appendUint24(dst, c.ReadLen)
	return append(dst, c.Data...)
}

func (c SSpiFreq) appendPayload(dst []byte) []byte {
	return appendUint32(dst, c.Hz)
}

func (c SPinState) appendPayload(dst []byte) []byte {
	return append(dst, c.State)
}

// EncodedLen returns the number of bytes AppendCommand adds for c.
func EncodedLen(c Command) int {
	return OpCodeSize + c.payloadLen()
}

// AppendCommand appends the wire encoding of c to dst.
func AppendCommand(dst []byte, c Command) []byte {
	dst = append(dst, byte(c.OpCode()))
	return c.appendPayload(dst)
}

// DecodeCommand decodes one command from the front of data.
//
// It returns the command and the number of bytes it occupies, ErrIncomplete
// when data is a valid but short prefix, or a *DecodeError when the input can
// never become a valid command. Variable-length payloads alias data.
func DecodeCommand(data []byte) (Command, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrIncomplete
	}
	op, ok := ParseOpCode(data[0])
	if !ok {
		return nil, 0, &DecodeError{Offset: 0, Byte: data[0], Reason: "unknown opcode"}
	}
	p := data[OpCodeSize:]

	// fixed reports whether the fixed part of the payload is present.
	fixed := func(n int) bool { return len(p) >= n }

	switch op {
	case OpNop:
		return Nop{}, 1, nil
	case OpQIface:
		return QIface{}, 1, nil
	case OpQCmdMap:
		return QCmdMap{}, 1, nil
	case OpQPgmName:
		return QPgmName{}, 1, nil
	case OpQSerBuf:
		return QSerBuf{}, 1, nil
	case OpQBusType:
		return QBusType{}, 1, nil
	case OpQChipSize:
		return QChipSize{}, 1, nil
	case OpQOpBuf:
		return QOpBuf{}, 1, nil
	case OpQWrnMaxLen:
		return QWrnMaxLen{}, 1, nil
	case OpOInit:
		return OInit{}, 1, nil
	case OpOExec:
		return OExec{}, 1, nil
	case OpSyncNop:
		return SyncNop{}, 1, nil
	case OpQRdnMaxLen:
		return QRdnMaxLen{}, 1, nil

	case OpRByte:
		if !fixed(AddressSize) {
			return nil, 0, ErrIncomplete
		}
		return RByte{Addr: Address(getUint24(p))}, 1 + AddressSize, nil

	case OpRNBytes:
		if !fixed(AddressSize + LengthSize) {
			return nil, 0, ErrIncomplete
		}
		return RNBytes{
			Addr: Address(getUint24(p)),
			N:    getUint24(p[AddressSize:]),
		}, 1 + AddressSize + LengthSize, nil

	case OpOWriteB:
		if !fixed(AddressSize + 1) {
			return nil, 0, ErrIncomplete
		}
		return OWriteB{
			Addr: Address(getUint24(p)),
			Data: p[AddressSize],
		}, 1 + AddressSize + 1, nil

	case OpOWriteN:
		const hdr = LengthSize + AddressSize
		if !fixed(hdr) {
			return nil, 0, ErrIncomplete
		}
		n := int(getUint24(p))
		if !fixed(hdr + n) {
			return nil, 0, ErrIncomplete
		}
		return OWriteN{
			Addr: Address(getUint24(p[LengthSize:])),
			Data: payload(p[hdr : hdr+n]),
		}, 1 + hdr + n, nil

	case OpODelay:
		if !fixed(DelaySize) {
			return nil, 0, ErrIncomplete
		}
		return ODelay{Micros: getUint32(p)}, 1 + DelaySize, nil

	case OpSBusType:
		if !fixed(1) {
			return nil, 0, ErrIncomplete
		}
		return SBusType{Bus: BusType(p[0])}, 2, nil

	case OpOSpiOp:
		const hdr = 2 * LengthSize
		if !fixed(hdr) {
			return nil, 0, ErrIncomplete
		}
		slen := int(getUint24(p))
		rlen := getUint24(p[LengthSize:])
		if !fixed(hdr + slen) {
			return nil, 0, ErrIncomplete
		}
		return OSpiOp{
			ReadLen: rlen,
			Data:    payload(p[hdr : hdr+slen]),
		}, 1 + hdr + slen, nil

	case OpSSpiFreq:
		if !fixed(FreqSize) {
			return nil, 0, ErrIncomplete
		}
		return SSpiFreq{Hz: getUint32(p)}, 1 + FreqSize, nil

	case OpSPinState:
		if !fixed(1) {
			return nil, 0, ErrIncomplete
		}
		return SPinState{State: p[0]}, 2, nil
	}

	// ParseOpCode and the switch above cover the same set.
	return nil, 0, &DecodeError{Offset: 0, Byte: data[0], Reason: "opcode without decoder"}
}

// payload returns nil for empty payloads so decoded commands compare equal to
// ones built without data.
func payload(p []byte) []byte {
	if len(p) == 0 {
		return nil
	}
	return p
}
