package tensor

import (
	"fmt"
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *Tensor {
	mustValidate(shape)
	return newUninit(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	return Full(shape, 1)
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1).
func Randn(shape Shape, rng *rand.Rand) *Tensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64())
	}
	return t
}

func mustValidate(shape Shape) {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor: invalid shape %v: %v", shape, err))
	}
}
