package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityFor(t *testing.T) {
	n, err := CapacityFor(1200, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 801, n)

	n, err = CapacityFor(10, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	_, err = CapacityFor(0, 1.5)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	_, err = CapacityFor(1200, -1)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestNewBufferIsPrefilled(t *testing.T) {
	b, err := NewBuffer(801)
	require.NoError(t, err)

	samples := b.Samples()
	require.Len(t, samples, 801)
	for _, v := range samples {
		require.Zero(t, v)
	}
	assert.Zero(t, b.Last())

	_, err = NewBuffer(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestPushKeepsFIFOOrder(t *testing.T) {
	b, err := NewBuffer(4)
	require.NoError(t, err)

	b.Push(1)
	assert.Equal(t, []float64{0, 0, 0, 1}, b.Samples())

	for v := 2.0; v <= 6; v++ {
		b.Push(v)
	}
	assert.Equal(t, []float64{3, 4, 5, 6}, b.Samples())
	assert.Equal(t, 3.0, b.At(0))
	assert.Equal(t, 6.0, b.Last())
	assert.Equal(t, 4, b.Len())
}

func TestPushManyTimesKeepsCapacity(t *testing.T) {
	b, err := NewBuffer(801)
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		b.Push(float64(i))
		require.Equal(t, 801, b.Len())
	}

	samples := b.Samples()
	for i := 1; i < len(samples); i++ {
		require.Equal(t, samples[i-1]+1, samples[i], "oldest evicted first")
	}
	assert.Equal(t, 4999.0, samples[800])
}

func TestSamplesIsACopy(t *testing.T) {
	b, err := NewBuffer(3)
	require.NoError(t, err)
	b.Push(9)

	s := b.Samples()
	s[2] = -1
	assert.Equal(t, 9.0, b.Last())
}

func TestAppendToReusesSlice(t *testing.T) {
	b, err := NewBuffer(3)
	require.NoError(t, err)
	b.Push(1)
	b.Push(2)

	dst := make([]float64, 0, 8)
	dst = b.AppendTo(dst[:0])
	assert.Equal(t, []float64{0, 1, 2}, dst)
}

func TestFill(t *testing.T) {
	b, err := NewBuffer(3)
	require.NoError(t, err)
	b.Push(5)
	b.Fill(0)
	assert.Equal(t, []float64{0, 0, 0}, b.Samples())
}

func TestAtOutOfRangePanics(t *testing.T) {
	b, err := NewBuffer(2)
	require.NoError(t, err)
	assert.Panics(t, func() { b.At(2) })
}
