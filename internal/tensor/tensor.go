// Package tensor provides dense float32 tensors and the numerical kernels
// used by the encoder and the LoRA adapters.
//
// Tensors are always contiguous and row-major. Operations return new
// tensors and never alias their inputs, except Reshape, which shares the
// underlying buffer with its source.
//
// Example:
//
//	x := tensor.Randn(tensor.Shape{2, 5, 16}, rng)
//	w := tensor.Randn(tensor.Shape{16, 16}, rng)
//	y := tensor.Linear(x, w, nil) // [2, 5, 16]
package tensor

import (
	"fmt"
	"math"
)

// Tensor is a dense, contiguous, row-major float32 tensor.
type Tensor struct {
	shape Shape
	data  []float32
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	buf := make([]float32, len(data))
	copy(buf, data)
	return &Tensor{shape: shape.Clone(), data: buf}, nil
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice(data []float32, shape Shape) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// newUninit allocates a zeroed tensor without validating the shape.
func newUninit(shape Shape) *Tensor {
	return &Tensor{shape: shape.Clone(), data: make([]float32, shape.NumElements())}
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Dim returns the size of one dimension. Negative indices count from the end.
func (t *Tensor) Dim(i int) int {
	return t.shape[t.shape.axis(i)]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the underlying buffer. Writes are visible to the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := newUninit(t.shape)
	copy(c.data, t.data)
	return c
}

// CopyFrom overwrites t's values with src's. Shapes must match.
func (t *Tensor) CopyFrom(src *Tensor) error {
	if !t.shape.Equal(src.shape) {
		return fmt.Errorf("shape mismatch: expected %v, got %v", t.shape, src.shape)
	}
	copy(t.data, src.data)
	return nil
}

// At returns the element at the given multi-dimensional index.
func (t *Tensor) At(idx ...int) float32 {
	return t.data[t.offset(idx)]
}

// Set writes the element at the given multi-dimensional index.
func (t *Tensor) Set(v float32, idx ...int) {
	t.data[t.offset(idx)] = v
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: index %v has wrong rank for shape %v", idx, t.shape))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.shape))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// Equal reports whether both tensors have the same shape and bitwise
// identical values.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		if math.Float32bits(v) != math.Float32bits(other.data[i]) {
			return false
		}
	}
	return true
}

// AllClose reports whether both tensors have the same shape and every pair
// of elements satisfies |a-b| <= atol + rtol*|b|.
func (t *Tensor) AllClose(other *Tensor, rtol, atol float64) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	for i, v := range t.data {
		a, b := float64(v), float64(other.data[i])
		if math.Abs(a-b) > atol+rtol*math.Abs(b) {
			return false
		}
	}
	return true
}

// String returns a short description for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v)", t.shape)
}
