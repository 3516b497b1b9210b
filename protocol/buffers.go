package protocol

// RingBuffer is a fixed-capacity byte store with independent read and write
// cursors. It is the transport fill target and the decoder's input window.
//
// Invariant: 0 <= rpos <= wpos <= len(store). Space freed by reads is only
// reclaimed when a write needs it, by moving the unread bytes to offset 0.
type RingBuffer struct {
	store []byte
	rpos  int
	wpos  int
}

// NewRingBuffer wraps store, which the buffer owns from now on. The store is
// never grown; pass a fixed region such as a static array slice.
func NewRingBuffer(store []byte) *RingBuffer {
	return &RingBuffer{store: store}
}

// Len returns the capacity of the buffer.
func (b *RingBuffer) Len() int {
	return len(b.store)
}

// AvailableRead returns the number of unread bytes.
func (b *RingBuffer) AvailableRead() int {
	return b.wpos - b.rpos
}

// AvailableWrite returns the space available for writing, counting space that
// is only reachable after compaction.
func (b *RingBuffer) AvailableWrite() int {
	return b.tailFree() + b.rpos
}

func (b *RingBuffer) tailFree() int {
	return len(b.store) - b.wpos
}

// Write appends as many bytes of data as fit and returns that count.
// Zero means the buffer is full.
func (b *RingBuffer) Write(data []byte) int {
	n := minOf(len(data), b.AvailableWrite())
	if n == 0 {
		return 0
	}
	if n > b.tailFree() {
		b.compact()
	}
	copy(b.store[b.wpos:], data[:n])
	b.wpos += n
	return n
}

// WriteFrom reserves maxCount bytes and hands them to fill, committing only
// the count fill reports. If maxCount cannot be reserved, fill is not called
// and zero is returned. A fill error commits nothing.
func (b *RingBuffer) WriteFrom(maxCount int, fill func(p []byte) (int, error)) (int, error) {
	if maxCount <= 0 || maxCount > b.AvailableWrite() {
		return 0, nil
	}
	if maxCount > b.tailFree() {
		b.compact()
	}
	n, err := fill(b.store[b.wpos : b.wpos+maxCount])
	if err != nil {
		return 0, err
	}
	n = minOf(n, maxCount)
	if n < 0 {
		n = 0
	}
	b.wpos += n
	return n, nil
}

// Peek returns a view of up to maxCount unread bytes without consuming them.
// The view is valid until the next write.
func (b *RingBuffer) Peek(maxCount int) []byte {
	n := minOf(maxCount, b.AvailableRead())
	if n < 0 {
		n = 0
	}
	return b.store[b.rpos : b.rpos+n]
}

// Read passes a view of up to maxCount unread bytes to fn. The read cursor is
// not moved; call Consume once the bytes have really been used.
func (b *RingBuffer) Read(maxCount int, fn func(p []byte)) {
	fn(b.Peek(maxCount))
}

// Consume advances the read cursor by up to n bytes.
func (b *RingBuffer) Consume(n int) {
	n = minOf(n, b.AvailableRead())
	if n <= 0 {
		return
	}
	b.rpos += n
	if size := len(b.store); b.rpos >= size {
		b.rpos %= size
		b.wpos %= size
	}
}

// Clear discards everything buffered.
func (b *RingBuffer) Clear() {
	b.rpos = 0
	b.wpos = 0
}

// IsEmpty returns true if there is nothing to read
func (b *RingBuffer) IsEmpty() bool {
	return b.rpos == b.wpos
}

// compact moves the unread bytes to the front of the store.
func (b *RingBuffer) compact() {
	if b.rpos == 0 {
		return
	}
	copy(b.store, b.store[b.rpos:b.wpos])
	b.wpos -= b.rpos
	b.rpos = 0
}

// ScratchOutput is a fixed-size staging area for one encoded response.
type ScratchOutput struct {
	buf [MaxResponseSize]byte
	pos int
}

// NewScratchOutput creates a new ScratchOutput
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{pos: 0}
}

// Encode replaces the contents with the encoding of r.
func (s *ScratchOutput) Encode(r Response) error {
	s.pos = 0
	n, err := Encode(s.buf[:], r)
	if err != nil {
		return err
	}
	s.pos = n
	return nil
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}
