package protocol

// Response is one reply shape. The encoded size is known before encoding and
// equals exactly what Encode writes.
type Response interface {
	OpCode() OpCode
	Status() Status
	Size() int

	// put writes the encoding into dst, which holds exactly Size() bytes.
	put(dst []byte)
}

type (
	// NopReply answers Nop.
	NopReply struct{ St Status }

	// QIfaceReply carries the protocol version.
	QIfaceReply struct{ Version uint16 }

	// QCmdMapReply carries the supported opcode bitmap.
	QCmdMapReply struct{ Map CmdMap }

	// QPgmNameReply carries the NUL-padded programmer name.
	QPgmNameReply struct{ Name [PgmNameSize]byte }

	// QSerBufReply carries the command buffer capacity.
	QSerBufReply struct{ Bytes uint16 }

	// QBusTypeReply carries the supported bus mask.
	QBusTypeReply struct{ Bus BusType }

	// QOpBufReply carries the operation buffer size.
	QOpBufReply struct{ Bytes uint16 }

	// QWrnMaxLenReply carries the longest accepted write, a 24-bit value.
	QWrnMaxLenReply struct{ Len uint32 }

	// SyncNopReply is always Ack followed by Nak.
	SyncNopReply struct{}

	SBusTypeReply  struct{ St Status }
	SPinStateReply struct{ St Status }

	// SpiOpReply carries the bytes clocked in from the device. Data is only
	// sent when St is Ack.
	SpiOpReply struct {
		St   Status
		Data []byte
	}

	// SSpiFreqReply carries the frequency actually applied. The field is
	// always on the wire; a Nak carries zero.
	SSpiFreqReply struct {
		St Status
		Hz uint32
	}

	// NakReply is a bare Nak to a query, seen only by decoders of foreign
	// devices that refuse a command.
	NakReply struct{ Op OpCode }
)

func (NopReply) OpCode() OpCode        { return OpNop }
func (QIfaceReply) OpCode() OpCode     { return OpQIface }
func (QCmdMapReply) OpCode() OpCode    { return OpQCmdMap }
func (QPgmNameReply) OpCode() OpCode   { return OpQPgmName }
func (QSerBufReply) OpCode() OpCode    { return OpQSerBuf }
func (QBusTypeReply) OpCode() OpCode   { return OpQBusType }
func (QOpBufReply) OpCode() OpCode     { return OpQOpBuf }
func (QWrnMaxLenReply) OpCode() OpCode { return OpQWrnMaxLen }
func (SyncNopReply) OpCode() OpCode    { return OpSyncNop }
func (SBusTypeReply) OpCode() OpCode   { return OpSBusType }
func (SPinStateReply) OpCode() OpCode  { return OpSPinState }
func (SpiOpReply) OpCode() OpCode      { return OpOSpiOp }
func (SSpiFreqReply) OpCode() OpCode   { return OpSSpiFreq }
func (r NakReply) OpCode() OpCode      { return r.Op }

func (r NopReply) Status() Status       { return r.St }
func (QIfaceReply) Status() Status      { return Ack }
func (QCmdMapReply) Status() Status     { return Ack }
func (QPgmNameReply) Status() Status    { return Ack }
func (QSerBufReply) Status() Status     { return Ack }
func (QBusTypeReply) Status() Status    { return Ack }
func (QOpBufReply) Status() Status      { return Ack }
func (QWrnMaxLenReply) Status() Status  { return Ack }
func (SyncNopReply) Status() Status     { return Ack }
func (r SBusTypeReply) Status() Status  { return r.St }
func (r SPinStateReply) Status() Status { return r.St }
func (r SpiOpReply) Status() Status     { return r.St }
func (r SSpiFreqReply) Status() Status  { return r.St }
func (NakReply) Status() Status         { return Nak }

func (NopReply) Size() int        { return 1 }
func (QIfaceReply) Size() int     { return 1 + 2 }
func (QCmdMapReply) Size() int    { return 1 + CmdMapSize }
func (QPgmNameReply) Size() int   { return 1 + PgmNameSize }
func (QSerBufReply) Size() int    { return 1 + 2 }
func (QBusTypeReply) Size() int   { return 1 + 1 }
func (QOpBufReply) Size() int     { return 1 + 2 }
func (QWrnMaxLenReply) Size() int { return 1 + LengthSize }
func (SyncNopReply) Size() int    { return 2 }
func (SBusTypeReply) Size() int   { return 1 }
func (SPinStateReply) Size() int  { return 1 }
func (SSpiFreqReply) Size() int   { return 1 + FreqSize }
func (NakReply) Size() int        { return 1 }

func (r SpiOpReply) Size() int {
	if r.St != Ack {
		return 1
	}
	return 1 + len(r.Data)
}

func (r NopReply) put(dst []byte) { dst[0] = byte(r.St) }

func (r QIfaceReply) put(dst []byte) {
	dst[0] = byte(Ack)
	putUint16(dst[1:], r.Version)
}

func (r QCmdMapReply) put(dst []byte) {
	dst[0] = byte(Ack)
	copy(dst[1:], r.Map[:])
}

func (r QPgmNameReply) put(dst []byte) {
	dst[0] = byte(Ack)
	copy(dst[1:], r.Name[:])
}

func (r QSerBufReply) put(dst []byte) {
	dst[0] = byte(Ack)
	putUint16(dst[1:], r.Bytes)
}

func (r QBusTypeReply) put(dst []byte) {
	dst[0] = byte(Ack)
	dst[1] = byte(r.Bus)
}

func (r QOpBufReply) put(dst []byte) {
	dst[0] = byte(Ack)
	putUint16(dst[1:], r.Bytes)
}

func (r QWrnMaxLenReply) put(dst []byte) {
	dst[0] = byte(Ack)
	putUint24(dst[1:], r.Len)
}

func (SyncNopReply) put(dst []byte) {
	dst[0] = byte(Ack)
	dst[1] = byte(Nak)
}

func (r SBusTypeReply) put(dst []byte)  { dst[0] = byte(r.St) }
func (r SPinStateReply) put(dst []byte) { dst[0] = byte(r.St) }
func (NakReply) put(dst []byte)         { dst[0] = byte(Nak) }

func (r SpiOpReply) put(dst []byte) {
	dst[0] = byte(r.St)
	if r.St == Ack {
		copy(dst[1:], r.Data)
	}
}

func (r SSpiFreqReply) put(dst []byte) {
	dst[0] = byte(r.St)
	putUint32(dst[1:], r.Hz)
}

// Encode writes r into dst and returns the number of bytes written, which is
// always r.Size(). A short dst yields *BufferTooSmallError and writes nothing.
func Encode(dst []byte, r Response) (int, error) {
	need := r.Size()
	if len(dst) < need {
		return 0, &BufferTooSmallError{Have: len(dst), Need: need}
	}
	r.put(dst[:need])
	return need, nil
}

// AppendResponse appends the encoding of r to dst.
func AppendResponse(dst []byte, r Response) []byte {
	n := len(dst)
	need := r.Size()
	for i := 0; i < need; i++ {
		dst = append(dst, 0)
	}
	r.put(dst[n:])
	return dst
}

// DecodeResponse decodes the reply to a command with opcode op from the front
// of data. readLen is the rlen of the OSpiOp that was sent and is ignored for
// every other opcode. Like DecodeCommand it reports ErrIncomplete for a short
// prefix; SpiOpReply.Data aliases data.
func DecodeResponse(op OpCode, readLen int, data []byte) (Response, int, error) {
	if len(data) == 0 {
		return nil, 0, ErrIncomplete
	}
	st := Status(data[0])
	if st != Ack && st != Nak {
		return nil, 0, &DecodeError{Offset: 0, Byte: data[0], Reason: "invalid status"}
	}
	need := func(n int) bool { return len(data) >= n }

	// Shapes that carry their status.
	switch op {
	case OpNop:
		return NopReply{St: st}, 1, nil
	case OpSBusType:
		return SBusTypeReply{St: st}, 1, nil
	case OpSPinState:
		return SPinStateReply{St: st}, 1, nil
	case OpSSpiFreq:
		if !need(1 + FreqSize) {
			return nil, 0, ErrIncomplete
		}
		return SSpiFreqReply{St: st, Hz: getUint32(data[1:])}, 1 + FreqSize, nil
	case OpOSpiOp:
		if st == Nak {
			return SpiOpReply{St: Nak}, 1, nil
		}
		if readLen < 0 {
			readLen = 0
		}
		if !need(1 + readLen) {
			return nil, 0, ErrIncomplete
		}
		return SpiOpReply{St: Ack, Data: payload(data[1 : 1+readLen])}, 1 + readLen, nil
	}

	if st == Nak {
		return NakReply{Op: op}, 1, nil
	}

	switch op {
	case OpQIface:
		if !need(3) {
			return nil, 0, ErrIncomplete
		}
		return QIfaceReply{Version: getUint16(data[1:])}, 3, nil
	case OpQCmdMap:
		if !need(1 + CmdMapSize) {
			return nil, 0, ErrIncomplete
		}
		var r QCmdMapReply
		copy(r.Map[:], data[1:])
		return r, 1 + CmdMapSize, nil
	case OpQPgmName:
		if !need(1 + PgmNameSize) {
			return nil, 0, ErrIncomplete
		}
		var r QPgmNameReply
		copy(r.Name[:], data[1:])
		return r, 1 + PgmNameSize, nil
	case OpQSerBuf:
		if !need(3) {
			return nil, 0, ErrIncomplete
		}
		return QSerBufReply{Bytes: getUint16(data[1:])}, 3, nil
	case OpQBusType:
		if !need(2) {
			return nil, 0, ErrIncomplete
		}
		return QBusTypeReply{Bus: BusType(data[1])}, 2, nil
	case OpQOpBuf:
		if !need(3) {
			return nil, 0, ErrIncomplete
		}
		return QOpBufReply{Bytes: getUint16(data[1:])}, 3, nil
	case OpQWrnMaxLen:
		if !need(1 + LengthSize) {
			return nil, 0, ErrIncomplete
		}
		return QWrnMaxLenReply{Len: getUint24(data[1:])}, 1 + LengthSize, nil
	case OpSyncNop:
		if !need(2) {
			return nil, 0, ErrIncomplete
		}
		if Status(data[1]) != Nak {
			return nil, 0, &DecodeError{Offset: 1, Byte: data[1], Reason: "sync reply must end in NAK"}
		}
		return SyncNopReply{}, 2, nil
	}
	return nil, 0, &DecodeError{Offset: 0, Byte: byte(op), Reason: "no reply shape for " + op.String()}
}

// NameString trims the NUL padding from a programmer name.
func (r QPgmNameReply) NameString() string {
	n := 0
	for n < len(r.Name) && r.Name[n] != 0 {
		n++
	}
	return string(r.Name[:n])
}
