package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferReadWrite(t *testing.T) {
	rb := NewRingBuffer(4)
	assert.True(t, rb.IsEmpty())

	n, err := rb.Write([]int16{1, 2, 3})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, rb.Available())
	assert.Equal(t, 1, rb.Free())

	out := make([]int16, 2)
	assert.Equal(t, 2, rb.Read(out))
	assert.Equal(t, []int16{1, 2}, out)

	// wraps around
	n, err = rb.Write([]int16{4, 5, 6})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, rb.Free())

	out = make([]int16, 8)
	assert.Equal(t, 4, rb.Read(out))
	assert.Equal(t, []int16{3, 4, 5, 6}, out[:4])
	assert.True(t, rb.IsEmpty())
}

func TestRingBufferOverflow(t *testing.T) {
	rb := NewRingBuffer(3)

	n, err := rb.Write([]int16{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrBufferFull)
	assert.Equal(t, 3, n)

	out := make([]int16, 3)
	assert.Equal(t, 3, rb.Read(out))
	assert.Equal(t, []int16{1, 2, 3}, out)
}

func TestRingBufferReset(t *testing.T) {
	rb := NewRingBuffer(4)
	_, _ = rb.Write([]int16{1, 2})
	rb.Reset()

	assert.True(t, rb.IsEmpty())
	assert.Equal(t, 0, rb.Read(make([]int16, 4)))
	assert.Equal(t, 4, rb.Size())
}
