package flashsim

// Inspection helpers for tests and the daemon's sim backend.

// Load writes data at addr directly, bypassing program semantics.
func (f *Flash) Load(addr int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(f.mem[addr:], data)
}

// Contents returns a copy of n bytes starting at addr.
func (f *Flash) Contents(addr, n int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, n)
	copy(out, f.mem[addr:])
	return out
}

// Status returns the status register without consuming a busy poll.
func (f *Flash) Status() byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	if f.busy > 0 {
		st |= StatusBusy
	}
	return st
}

// Enabled reports whether the SPI peripheral is currently configured.
func (f *Flash) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Rate returns the clock rate of the last ConfigureBus.
func (f *Flash) Rate() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Selected reports whether chip select is asserted.
func (f *Flash) Selected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Floating reports whether the chip select pin is released.
func (f *Flash) Floating() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.floating
}

// Selects counts chip select assertions.
func (f *Flash) Selects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selects
}

// Stray counts bytes clocked while the chip was not selected.
func (f *Flash) Stray() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stray
}

// Commands returns the opcodes of every completed selection, oldest first.
func (f *Flash) Commands() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.commands...)
}
