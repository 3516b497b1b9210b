package protocol

import (
	"errors"
	"fmt"
)

// ErrIncomplete reports a valid command or response prefix that needs more
// bytes before it can be decoded. Nothing was consumed.
var ErrIncomplete = errors.New("incomplete message")

// DecodeError is a terminal decode failure. The caller discards the buffered
// input; no resynchronization is attempted.
type DecodeError struct {
	// Offset of the offending byte within the decoded window
	Offset int

	// Byte is the offending value
	Byte byte

	// Reason describes what was wrong with it
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed at offset %d (0x%02X): %s", e.Offset, e.Byte, e.Reason)
}

// IsDecodeError returns true if the error is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// BufferTooSmallError is returned by the encoders when the destination cannot
// hold the message. With fixed protocol sizes this is a sizing defect.
type BufferTooSmallError struct {
	Have int
	Need int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("buffer of size %d provided while a buffer of size %d was required", e.Have, e.Need)
}
