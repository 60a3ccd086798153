package nn

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/tensor"
)

func TestLinear_Forward(t *testing.T) {
	l := NewLinear(2, 2, true, DefaultInitStd, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, l.Weight.Tensor().CopyFrom(tensor.MustFromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})))
	require.NoError(t, l.Bias.Tensor().CopyFrom(tensor.MustFromSlice([]float32{1, -1}, tensor.Shape{2})))

	out := l.Forward(tensor.MustFromSlice([]float32{1, 1}, tensor.Shape{1, 1, 2}))
	assert.Equal(t, tensor.Shape{1, 1, 2}, out.Shape())
	assert.Equal(t, []float32{4, 6}, out.Data())
	assert.Len(t, l.Parameters(), 2)

	noBias := NewLinear(2, 2, false, DefaultInitStd, rand.New(rand.NewPCG(1, 1)))
	assert.Len(t, noBias.Parameters(), 1)
	assert.Nil(t, noBias.Bias)
}

func TestNewLinear_InitScale(t *testing.T) {
	l := NewLinear(64, 64, true, DefaultInitStd, rand.New(rand.NewPCG(5, 5)))

	var sum, sq float64
	for _, v := range l.Weight.Tensor().Data() {
		sum += float64(v)
		sq += float64(v) * float64(v)
	}
	n := float64(l.Weight.NumElements())
	std := math.Sqrt(sq/n - (sum/n)*(sum/n))
	assert.InDelta(t, DefaultInitStd, std, 0.002)

	for _, v := range l.Bias.Tensor().Data() {
		assert.Zero(t, v)
	}
}

func TestLayerNorm_Forward(t *testing.T) {
	ln := NewLayerNorm(4, 1e-12)
	x := tensor.MustFromSlice([]float32{1, 2, 3, 4, 10, 10, 10, 10}, tensor.Shape{2, 4})

	out := ln.Forward(x)
	row := out.Data()[:4]
	var mean, variance float64
	for _, v := range row {
		mean += float64(v)
	}
	mean /= 4
	for _, v := range row {
		variance += (float64(v) - mean) * (float64(v) - mean)
	}
	variance /= 4

	assert.InDelta(t, 0, mean, 1e-6)
	assert.InDelta(t, 1, variance, 1e-4)
	for _, v := range out.Data()[4:] {
		assert.InDelta(t, 0, v, 1e-6)
	}
	// Input untouched.
	assert.Equal(t, float32(1), x.At(0, 0))
}

func TestEmbedding_Lookup(t *testing.T) {
	e := NewEmbedding(5, 3, DefaultInitStd, rand.New(rand.NewPCG(2, 2)))
	out := e.Lookup([][]int{{0, 4}, {1, 1}})

	require.Equal(t, tensor.Shape{2, 2, 3}, out.Shape())
	w := e.Weight.Tensor()
	for d := 0; d < 3; d++ {
		assert.Equal(t, w.At(4, d), out.At(0, 1, d))
		assert.Equal(t, w.At(1, d), out.At(1, 0, d))
	}

	assert.Panics(t, func() { e.Lookup([][]int{{0, 1}, {2}}) })
	assert.Panics(t, func() { e.Lookup([][]int{{5}}) })
}

func TestDropout(t *testing.T) {
	d := NewDropout(0.5, rand.New(rand.NewPCG(3, 3)))
	x := tensor.Ones(tensor.Shape{1000})

	assert.Same(t, x, d.Forward(x), "eval mode is the identity")

	d.SetTraining(true)
	out := d.Forward(x)
	zeros := 0
	for _, v := range out.Data() {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, float32(2), v)
		}
	}
	assert.InDelta(t, 500, zeros, 80)
}

func TestActivation(t *testing.T) {
	x := tensor.MustFromSlice([]float32{-1, 0, 1}, tensor.Shape{3})

	for _, name := range []string{"gelu", "gelu_new", "relu", "tanh", "silu"} {
		f, err := Activation(name)
		require.NoError(t, err, name)
		out := f(x)
		assert.Equal(t, float32(0), out.At(1), name)
	}

	gelu, _ := Activation("gelu")
	assert.InDelta(t, 0.8413447, gelu(x).At(2), 1e-6)

	_, err := Activation("mish")
	assert.Error(t, err)
}
