package programmer

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"vserprog/protocol"
)

var (
	// ErrTimeout is returned when a reply does not arrive in time.
	ErrTimeout = errors.New("serprog: reply timeout")

	// ErrClosed is returned by requests on a closed transport.
	ErrClosed = errors.New("serprog: transport closed")
)

// Transport sends serprog commands and waits for their replies. A background
// goroutine reads the port into a ring buffer; requests decode their reply
// from the front of it. Requests are serialized.
type Transport struct {
	port    io.ReadWriteCloser
	timeout time.Duration

	reqMu sync.Mutex
	out   []byte
	stale bool // a request timed out; its reply may still arrive

	mu      sync.Mutex
	store   [2 * protocol.MaxResponseSize]byte
	input   *protocol.RingBuffer
	dropped int
	readErr error

	notify   chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewTransport starts reading port. timeout bounds every request made with
// Do; zero means two seconds.
func NewTransport(port io.ReadWriteCloser, timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	t := &Transport{
		port:     port,
		timeout:  timeout,
		out:      make([]byte, 0, protocol.MaxCommandSize),
		notify:   make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	t.input = protocol.NewRingBuffer(t.store[:])
	go t.readLoop()
	return t
}

// Do sends cmd and returns its reply.
func (t *Transport) Do(cmd protocol.Command) (protocol.Response, error) {
	return t.DoTimeout(cmd, t.timeout)
}

// DoTimeout is Do with an explicit timeout.
func (t *Transport) DoTimeout(cmd protocol.Command, timeout time.Duration) (protocol.Response, error) {
	t.reqMu.Lock()
	defer t.reqMu.Unlock()

	select {
	case <-t.stopChan:
		return nil, ErrClosed
	default:
	}

	if t.stale {
		t.Flush()
		t.stale = false
	}

	op := cmd.OpCode()
	t.out = protocol.AppendCommand(t.out[:0], cmd)
	if err := t.writeAll(t.out); err != nil {
		return nil, errors.Wrapf(err, "send %s", op)
	}

	readLen := 0
	if spi, ok := cmd.(protocol.OSpiOp); ok {
		readLen = int(spi.ReadLen)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		resp, err := t.tryDecode(op, readLen)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			t.Flush()
			return nil, errors.Wrapf(err, "decode %s reply", op)
		}

		select {
		case <-t.notify:
		case <-deadline.C:
			t.Flush()
			t.stale = true
			return nil, errors.Wrapf(ErrTimeout, "%s after %v", op, timeout)
		case <-t.stopChan:
			return nil, ErrClosed
		case <-t.doneChan:
			// Everything the reader got is already buffered.
			if resp, err := t.tryDecode(op, readLen); err == nil {
				return resp, nil
			}
			return nil, errors.Wrapf(t.loopErr(), "%s reply", op)
		}
	}
}

func (t *Transport) writeAll(b []byte) error {
	for len(b) > 0 {
		n, err := t.port.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		b = b[n:]
	}
	return nil
}

// tryDecode takes one reply off the front of the input buffer.
func (t *Transport) tryDecode(op protocol.OpCode, readLen int) (protocol.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dropped > 0 {
		n := t.dropped
		t.dropped = 0
		t.input.Clear()
		return nil, errors.Errorf("input overrun, %d bytes lost", n)
	}
	resp, n, err := protocol.DecodeResponse(op, readLen, t.input.Peek(t.input.AvailableRead()))
	if err != nil {
		return nil, err
	}
	if r, ok := resp.(protocol.SpiOpReply); ok && r.Data != nil {
		r.Data = append([]byte(nil), r.Data...)
		resp = r
	}
	t.input.Consume(n)
	return resp, nil
}

func (t *Transport) readLoop() {
	defer close(t.doneChan)

	buffer := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}

		n, err := t.port.Read(buffer)
		if n > 0 {
			t.mu.Lock()
			if w := t.input.Write(buffer[:n]); w < n {
				t.dropped += n - w
			}
			t.mu.Unlock()

			select {
			case t.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			t.mu.Lock()
			t.readErr = err
			t.mu.Unlock()
			return
		}
	}
}

func (t *Transport) loopErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr == nil {
		return io.EOF
	}
	return t.readErr
}

// Flush discards buffered input, for example stale bytes after a timeout.
func (t *Transport) Flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input.Clear()
	t.dropped = 0
}

// Buffered returns the number of received bytes not yet consumed.
func (t *Transport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input.AvailableRead()
}

// Close stops the reader and closes the port.
func (t *Transport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		// Closing the port unblocks a pending Read.
		err = t.port.Close()
		<-t.doneChan
	})
	return err
}
