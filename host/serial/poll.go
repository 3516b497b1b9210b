package serial

import (
	"io"
	"sync"
	"time"
)

// PollPort turns a blocking reader into the non-blocking port the serprog
// loop polls. A background goroutine reads chunks into a channel; Read only
// drains what has already arrived. Writes go straight through.
type PollPort struct {
	rw      io.ReadWriter
	data    chan []byte
	pending []byte

	done      chan struct{}
	stopped   chan struct{} // closed when readLoop returns
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewPollPort starts the reader goroutine. It stops when rw returns an
// error, or on Close once its pending Read returns.
func NewPollPort(rw io.ReadWriter) *PollPort {
	p := &PollPort{
		rw:      rw,
		data:    make(chan []byte, 16),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *PollPort) readLoop() {
	defer close(p.stopped)
	defer close(p.data)
	for {
		select {
		case <-p.done:
			return
		default:
		}
		buf := make([]byte, 256)
		n, err := p.rw.Read(buf)
		if n > 0 {
			select {
			case p.data <- buf[:n]:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

// Read copies already received bytes into b. It returns (0, nil) when
// nothing is waiting and the reader's error once it has stopped and every
// byte before the error was delivered.
func (p *PollPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk, ok := <-p.data:
			if !ok {
				return 0, p.readErr()
			}
			p.pending = chunk
		default:
			return 0, nil
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Wait blocks until data is available or d elapses. It is meant as the idle
// hook of a polling loop.
func (p *PollPort) Wait(d time.Duration) {
	if len(p.pending) > 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case chunk, ok := <-p.data:
		// A closed channel is reported by the next Read.
		if ok {
			p.pending = chunk
		}
	case <-timer.C:
	}
}

// Write writes all of b to the underlying writer.
func (p *PollPort) Write(b []byte) (int, error) {
	return p.rw.Write(b)
}

func (p *PollPort) readErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		return io.EOF
	}
	return p.err
}


// Close stops the reader from delivering more data. It does not close rw;
// a reader blocked in rw.Read exits once rw is closed.
func (p *PollPort) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
