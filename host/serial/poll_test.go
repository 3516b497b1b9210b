package serial

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

// readAll polls p until want bytes arrived or the deadline passes.
func readAll(t *testing.T, p *PollPort, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 8)
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		n, err := p.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
		if n == 0 {
			p.Wait(10 * time.Millisecond)
		}
	}
	return got
}

func TestPollPortRead(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	p := NewPollPort(a)

	buf := make([]byte, 4)
	if n, err := p.Read(buf); n != 0 || err != nil {
		t.Errorf("empty read = %d, %v", n, err)
	}

	msg := []byte("0123456789abcdef")
	go b.Write(msg)
	if got := readAll(t, p, len(msg)); !bytes.Equal(got, msg) {
		t.Errorf("got %q, want %q", got, msg)
	}
}

func TestPollPortWrite(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	p := NewPollPort(a)

	go p.Write([]byte{0x06, 0x15})
	buf := make([]byte, 2)
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte{0x06, 0x15}) {
		t.Errorf("peer read % X", buf)
	}
}

func TestPollPortEOF(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	p := NewPollPort(a)

	go func() {
		b.Write([]byte{1, 2, 3})
		b.Close()
	}()
	if got := readAll(t, p, 3); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Fatalf("got % X", got)
	}

	buf := make([]byte, 4)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := p.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.Errorf("err = %v, want EOF", err)
			}
			return
		}
		p.Wait(10 * time.Millisecond)
	}
	t.Error("EOF never reported")
}

func TestPollPortWaitTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	p := NewPollPort(a)

	start := time.Now()
	p.Wait(20 * time.Millisecond)
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Wait returned early with no data")
	}
}

func TestPollPortCloseStopsBlockedReader(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	p := NewPollPort(a)

	// Fill the chunk channel and leave the reader stuck delivering the next.
	go func() {
		for {
			if _, err := b.Write([]byte{0x00}); err != nil {
				return
			}
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(p.data) < cap(p.data) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(p.data) != cap(p.data) {
		t.Fatalf("only %d chunks queued", len(p.data))
	}

	p.Close()
	select {
	case <-p.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("reader still running after Close")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
