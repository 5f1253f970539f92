package audio

import (
	"errors"
	"sync"
)

// ErrBufferFull is returned when a write could not store every sample
var ErrBufferFull = errors.New("buffer is full")

// RingBuffer is a circular buffer of 16-bit samples.
// It is safe for one writer (the device callback) and one reader.
type RingBuffer struct {
	mu       sync.RWMutex
	buffer   []int16
	size     int
	writePos int
	readPos  int
	full     bool
}

// NewRingBuffer creates a new ring buffer holding size samples
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]int16, size),
		size:   size,
	}
}

// Write stores as many samples as fit.
// It returns the number written and ErrBufferFull if some were dropped.
func (rb *RingBuffer) Write(data []int16) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, s := range data {
		if rb.full {
			return written, ErrBufferFull
		}
		rb.buffer[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		written++

		if rb.writePos == rb.readPos {
			rb.full = true
		}
	}

	return written, nil
}

// Read reads up to len(data) samples and returns how many were read
func (rb *RingBuffer) Read(data []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(data) {
		if rb.readPos == rb.writePos && !rb.full {
			break
		}
		data[read] = rb.buffer[rb.readPos]
		rb.readPos = (rb.readPos + 1) % rb.size
		rb.full = false
		read++
	}

	return read
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.available()
}

func (rb *RingBuffer) available() int {
	if rb.full {
		return rb.size
	}
	if rb.writePos >= rb.readPos {
		return rb.writePos - rb.readPos
	}
	return rb.size - rb.readPos + rb.writePos
}

// Free returns the number of samples that can be written
func (rb *RingBuffer) Free() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size - rb.available()
}

// Reset clears the buffer
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.readPos = 0
	rb.writePos = 0
	rb.full = false
}

// Size returns the capacity in samples
func (rb *RingBuffer) Size() int {
	return rb.size
}

// IsEmpty returns true if there is nothing to read
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.readPos == rb.writePos && !rb.full
}
