package core

import (
	"errors"

	"vserprog/protocol"
)

var (
	// ErrReadFail wraps transport read errors and terminal decode failures.
	// The command buffer is cleared when it is reported.
	ErrReadFail = errors.New("serprog: read failed")

	// ErrWriteFail wraps transport write errors. The response is dropped.
	ErrWriteFail = errors.New("serprog: write failed")

	// ErrSPIDisabled is returned by transfers attempted while the SPI link
	// is not enabled.
	ErrSPIDisabled = errors.New("spi: link disabled")
)

// NotImplementedError reports a recognised opcode with no handler in the
// active profile. No response is sent for it.
type NotImplementedError struct {
	Op protocol.OpCode
}

func (e *NotImplementedError) Error() string {
	return "serprog: " + e.Op.String() + " not implemented"
}

// IsNotImplemented returns true if err is or wraps a NotImplementedError.
func IsNotImplemented(err error) bool {
	var ni *NotImplementedError
	return errors.As(err, &ni)
}
