package core

// Port is the byte transport to the host.
//
// Both calls are non-blocking. Read returns (0, nil) when no data is
// available and Write may accept fewer bytes than offered, including none.
// An error from either call is final for the current session; io.EOF from
// Read means the host went away.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}
