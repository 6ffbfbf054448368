package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularBuffer_FIFO(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())

	b.Clear()
	assert.Equal(t, 0, b.Size())
	b.Add(9)
	assert.Equal(t, []int{9}, b.Items())
}

func TestNewCircularBuffer_DefaultCapacity(t *testing.T) {
	b := NewCircularBuffer[string](0)
	for i := 0; i < 150; i++ {
		b.Add("q")
	}
	assert.Equal(t, 100, b.Size())
}
