package main

import "sync"

const oobBufferCapacity = 1024

// OutOfBandBuffer is a single-producer/single-consumer 1024-byte
// mailbox: Write succeeds only while the slot is empty, Read returns
// whatever is currently in it, and Done clears it for the next Write.
//
// The original this is grounded on (oob_buffer.rs) implements the same
// contract with a raw pointer and a lone atomic length field -- a
// sync.Mutex gets the same single-slot exclusion without unsafe code.
type OutOfBandBuffer struct {
	mu     sync.Mutex
	length int
	buffer [oobBufferCapacity]byte
}

func NewOutOfBandBuffer() *OutOfBandBuffer {
	return &OutOfBandBuffer{}
}

func (b *OutOfBandBuffer) HasData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length > 0
}

// Read returns a copy of the currently-held bytes.
func (b *OutOfBandBuffer) Read() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.length)
	copy(out, b.buffer[:b.length])
	return out
}

// Done clears the slot, making it available for the next Write.
func (b *OutOfBandBuffer) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.length = 0
}

// Write stores data in the slot if it is currently empty and data
// fits. It reports whether the write took effect.
func (b *OutOfBandBuffer) Write(data []byte) bool {
	if len(data) > oobBufferCapacity {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.length != 0 {
		return false
	}
	copy(b.buffer[:], data)
	b.length = len(data)
	return true
}
