package tensor

import "fmt"

// Add returns a + b with NumPy broadcasting.
func (t *Tensor) Add(other *Tensor) *Tensor {
	return broadcastBinary("Add", t, other, func(x, y float32) float32 { return x + y })
}

// Sub returns a - b with NumPy broadcasting.
func (t *Tensor) Sub(other *Tensor) *Tensor {
	return broadcastBinary("Sub", t, other, func(x, y float32) float32 { return x - y })
}

// Mul returns the element-wise product with NumPy broadcasting.
func (t *Tensor) Mul(other *Tensor) *Tensor {
	return broadcastBinary("Mul", t, other, func(x, y float32) float32 { return x * y })
}

// Div returns the element-wise quotient with NumPy broadcasting.
func (t *Tensor) Div(other *Tensor) *Tensor {
	return broadcastBinary("Div", t, other, func(x, y float32) float32 { return x / y })
}

// Scale multiplies every element by s.
func (t *Tensor) Scale(s float32) *Tensor {
	return t.Map(func(x float32) float32 { return x * s })
}

// DivScalar divides every element by s.
func (t *Tensor) DivScalar(s float32) *Tensor {
	return t.Map(func(x float32) float32 { return x / s })
}

// Map applies f to every element.
func (t *Tensor) Map(f func(float32) float32) *Tensor {
	out := newUninit(t.shape)
	for i, v := range t.data {
		out.data[i] = f(v)
	}
	return out
}

func broadcastBinary(op string, a, b *Tensor, f func(x, y float32) float32) *Tensor {
	if a.shape.Equal(b.shape) {
		out := newUninit(a.shape)
		for i := range out.data {
			out.data[i] = f(a.data[i], b.data[i])
		}
		return out
	}

	shape, err := BroadcastShapes(a.shape, b.shape)
	if err != nil {
		panic(fmt.Sprintf("tensor.%s: %v", op, err))
	}

	as := broadcastStrides(a.shape, shape)
	bs := broadcastStrides(b.shape, shape)
	out := newUninit(shape)
	idx := make([]int, len(shape))
	ai, bi := 0, 0
	for i := range out.data {
		out.data[i] = f(a.data[ai], b.data[bi])
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d]++
			ai += as[d]
			bi += bs[d]
			if idx[d] < shape[d] {
				break
			}
			ai -= as[d] * shape[d]
			bi -= bs[d] * shape[d]
			idx[d] = 0
		}
	}
	return out
}
