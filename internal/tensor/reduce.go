package tensor

import (
	"fmt"
	"math"

	"github.com/born-ml/lora/internal/parallel"
)

// Softmax normalizes the last dimension into probabilities.
//
// The row maximum is subtracted before exponentiation, so large additive
// masks (e.g. -3.4e38) produce exact zeros rather than NaN.
func (t *Tensor) Softmax() *Tensor {
	n := t.Dim(-1)
	out := newUninit(t.shape)
	parallel.For(len(t.data)/n, func(r int) {
		src := t.data[r*n : (r+1)*n]
		dst := out.data[r*n : (r+1)*n]

		maxVal := float32(math.Inf(-1))
		for _, v := range src {
			if v > maxVal {
				maxVal = v
			}
		}

		var sum float64
		for i, v := range src {
			e := float32(math.Exp(float64(v - maxVal)))
			dst[i] = e
			sum += float64(e)
		}
		inv := float32(1 / sum)
		for i := range dst {
			dst[i] *= inv
		}
	}, workers)
	return out
}

// IndexSelect gathers rows of a 2D tensor: [n, d] indexed by ids → [len(ids), d].
func (t *Tensor) IndexSelect(ids []int) *Tensor {
	if t.Rank() != 2 {
		panic(fmt.Sprintf("tensor.IndexSelect: expected 2D tensor, got %v", t.shape))
	}
	if len(ids) == 0 {
		panic("tensor.IndexSelect: no indices")
	}
	rows, d := t.shape[0], t.shape[1]
	out := newUninit(Shape{len(ids), d})
	for i, id := range ids {
		if id < 0 || id >= rows {
			panic(fmt.Sprintf("tensor.IndexSelect: index %d out of range [0, %d)", id, rows))
		}
		copy(out.data[i*d:(i+1)*d], t.data[id*d:(id+1)*d])
	}
	return out
}
