package tensor

import "fmt"

// Reshape returns a view with a new shape sharing t's buffer.
// At most one dimension may be -1 and is inferred.
func (t *Tensor) Reshape(dims ...int) *Tensor {
	shape := make(Shape, len(dims))
	copy(shape, dims)

	infer := -1
	known := 1
	for i, d := range shape {
		if d == -1 {
			if infer >= 0 {
				panic(fmt.Sprintf("tensor.Reshape: more than one -1 in %v", dims))
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || len(t.data)%known != 0 {
			panic(fmt.Sprintf("tensor.Reshape: cannot infer dimension of %v from %v", dims, t.shape))
		}
		shape[infer] = len(t.data) / known
	}
	if shape.NumElements() != len(t.data) {
		panic(fmt.Sprintf("tensor.Reshape: cannot reshape %v into %v", t.shape, shape))
	}
	return &Tensor{shape: shape, data: t.data}
}

// Permute reorders dimensions. axes[i] names the source dimension of output
// dimension i.
func (t *Tensor) Permute(axes ...int) *Tensor {
	if len(axes) != len(t.shape) {
		panic(fmt.Sprintf("tensor.Permute: %d axes for rank %d", len(axes), len(t.shape)))
	}

	src := t.shape.ComputeStrides()
	shape := make(Shape, len(axes))
	strides := make([]int, len(axes))
	seen := make([]bool, len(axes))
	for i, a := range axes {
		a = t.shape.axis(a)
		if seen[a] {
			panic(fmt.Sprintf("tensor.Permute: repeated axis in %v", axes))
		}
		seen[a] = true
		shape[i] = t.shape[a]
		strides[i] = src[a]
	}

	out := newUninit(shape)
	idx := make([]int, len(shape))
	off := 0
	for i := range out.data {
		out.data[i] = t.data[off]
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < shape[d] {
				break
			}
			off -= strides[d] * shape[d]
			idx[d] = 0
		}
	}
	return out
}

// Transpose swaps two dimensions.
func (t *Tensor) Transpose(a, b int) *Tensor {
	axes := make([]int, len(t.shape))
	for i := range axes {
		axes[i] = i
	}
	a, b = t.shape.axis(a), t.shape.axis(b)
	axes[a], axes[b] = axes[b], axes[a]
	return t.Permute(axes...)
}

// Concat joins tensors along dim. All other dimensions must match.
func Concat(dim int, ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("tensor.Concat: no tensors")
	}
	first := ts[0].shape
	dim = first.axis(dim)

	shape := first.Clone()
	shape[dim] = 0
	for _, t := range ts {
		if len(t.shape) != len(first) {
			panic(fmt.Sprintf("tensor.Concat: rank mismatch %v vs %v", first, t.shape))
		}
		for i := range first {
			if i != dim && t.shape[i] != first[i] {
				panic(fmt.Sprintf("tensor.Concat: shape mismatch %v vs %v on dimension %d", first, t.shape, i))
			}
		}
		shape[dim] += t.shape[dim]
	}

	outer := 1
	for _, d := range first[:dim] {
		outer *= d
	}
	inner := 1
	for _, d := range first[dim+1:] {
		inner *= d
	}

	out := newUninit(shape)
	pos := 0
	for o := 0; o < outer; o++ {
		for _, t := range ts {
			n := t.shape[dim] * inner
			copy(out.data[pos:pos+n], t.data[o*n:(o+1)*n])
			pos += n
		}
	}
	return out
}

// Narrow returns a copy of the slice [start, start+length) along dim.
func (t *Tensor) Narrow(dim, start, length int) *Tensor {
	dim = t.shape.axis(dim)
	if start < 0 || length <= 0 || start+length > t.shape[dim] {
		panic(fmt.Sprintf("tensor.Narrow: range [%d, %d) out of bounds for dimension %d of %v",
			start, start+length, dim, t.shape))
	}

	outer := 1
	for _, d := range t.shape[:dim] {
		outer *= d
	}
	inner := 1
	for _, d := range t.shape[dim+1:] {
		inner *= d
	}

	shape := t.shape.Clone()
	shape[dim] = length
	out := newUninit(shape)
	n := length * inner
	for o := 0; o < outer; o++ {
		src := o*t.shape[dim]*inner + start*inner
		copy(out.data[o*n:(o+1)*n], t.data[src:src+n])
	}
	return out
}
