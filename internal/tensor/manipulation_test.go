package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arange(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestReshape(t *testing.T) {
	x := MustFromSlice(arange(24), Shape{2, 3, 4})

	y := x.Reshape(2, -1, 2)
	assert.Equal(t, Shape{2, 6, 2}, y.Shape())
	assert.Equal(t, float32(23), y.At(1, 5, 1))

	assert.Panics(t, func() { x.Reshape(5, -1) })
	assert.Panics(t, func() { x.Reshape(-1, -1) })
	assert.Panics(t, func() { x.Reshape(2, 3) })
}

func TestPermute_HeadSplit(t *testing.T) {
	// [batch=1, seq=2, heads=2, dim=3] → [batch, heads, seq, dim]
	x := MustFromSlice(arange(12), Shape{1, 2, 2, 3})
	y := x.Permute(0, 2, 1, 3)

	require.Equal(t, Shape{1, 2, 2, 3}, y.Shape())
	for s := 0; s < 2; s++ {
		for h := 0; h < 2; h++ {
			for d := 0; d < 3; d++ {
				assert.Equal(t, x.At(0, s, h, d), y.At(0, h, s, d))
			}
		}
	}

	// Round trip.
	assert.True(t, y.Permute(0, 2, 1, 3).Equal(x))
	assert.Panics(t, func() { x.Permute(0, 0, 1, 2) })
}

func TestTranspose(t *testing.T) {
	x := MustFromSlice(arange(6), Shape{2, 3})
	y := x.Transpose(-1, -2)
	assert.Equal(t, Shape{3, 2}, y.Shape())
	assert.Equal(t, []float32{0, 3, 1, 4, 2, 5}, y.Data())
}

func TestConcat(t *testing.T) {
	a := MustFromSlice(arange(4), Shape{1, 2, 2})
	b := MustFromSlice([]float32{10, 11}, Shape{1, 1, 2})

	out := Concat(1, a, b)
	require.Equal(t, Shape{1, 3, 2}, out.Shape())
	assert.Equal(t, []float32{0, 1, 2, 3, 10, 11}, out.Data())

	c := MustFromSlice([]float32{7, 8}, Shape{2, 1})
	d := MustFromSlice(arange(4), Shape{2, 2})
	assert.Equal(t, []float32{0, 1, 7, 2, 3, 8}, Concat(-1, d, c).Data())

	assert.Panics(t, func() { Concat(0, a, MustFromSlice(arange(6), Shape{1, 2, 3})) })
}

func TestNarrow(t *testing.T) {
	x := MustFromSlice(arange(12), Shape{2, 3, 2})
	y := x.Narrow(1, 1, 2)

	require.Equal(t, Shape{2, 2, 2}, y.Shape())
	assert.Equal(t, []float32{2, 3, 4, 5, 8, 9, 10, 11}, y.Data())
	assert.Panics(t, func() { x.Narrow(1, 2, 2) })
}

func TestIndexSelect(t *testing.T) {
	w := MustFromSlice(arange(6), Shape{3, 2})
	out := w.IndexSelect([]int{2, 0, 2})

	assert.Equal(t, Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{4, 5, 0, 1, 4, 5}, out.Data())
	assert.Panics(t, func() { w.IndexSelect([]int{3}) })
}
