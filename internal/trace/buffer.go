package trace

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCapacity is returned for non-positive capacities.
var ErrInvalidCapacity = errors.New("buffer capacity must be positive")

// CapacityFor returns the number of samples needed to span width at step
// units per sample, including both edges: 1200 at 1.5 gives 801.
func CapacityFor(width, step float64) (int, error) {
	if width <= 0 || step <= 0 || math.IsNaN(width) || math.IsNaN(step) {
		return 0, fmt.Errorf("%w: width=%v step=%v", ErrInvalidCapacity, width, step)
	}
	return int(math.Floor(width/step)) + 1, nil
}

// Buffer is a fixed-capacity FIFO of samples ordered oldest to newest. It is
// pre-filled with zeros so a fresh trace is already full width.
//
// Storage is a ring; Samples linearises it. Buffer is not safe for
// concurrent use, the owning session serialises access.
type Buffer struct {
	data []float64
	head int // index of the oldest sample
}

// NewBuffer returns a buffer holding capacity zero samples.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{data: make([]float64, capacity)}, nil
}

// Push appends v as the newest sample and drops the oldest.
func (b *Buffer) Push(v float64) {
	b.data[b.head] = v
	b.head++
	if b.head == len(b.data) {
		b.head = 0
	}
}

// Len is always the capacity: the buffer starts full.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// At returns the i-th sample counting from the oldest.
func (b *Buffer) At(i int) float64 {
	if i < 0 || i >= len(b.data) {
		panic(fmt.Sprintf("trace: index %d out of range [0,%d)", i, len(b.data)))
	}
	return b.data[(b.head+i)%len(b.data)]
}

// Last returns the newest sample.
func (b *Buffer) Last() float64 {
	return b.At(len(b.data) - 1)
}

// Samples copies the contents oldest to newest.
func (b *Buffer) Samples() []float64 {
	return b.AppendTo(make([]float64, 0, len(b.data)))
}

// AppendTo appends the contents oldest to newest to dst, which lets a
// renderer reuse one slice across frames.
func (b *Buffer) AppendTo(dst []float64) []float64 {
	dst = append(dst, b.data[b.head:]...)
	return append(dst, b.data[:b.head]...)
}

// Fill overwrites every sample with v, keeping the capacity.
func (b *Buffer) Fill(v float64) {
	for i := range b.data {
		b.data[i] = v
	}
	b.head = 0
}
