package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/lora/internal/parallel"
)

// workers splits batched matmuls and row-wise reductions across CPUs.
var workers = parallel.DefaultConfig()

// matmulGrain is the multiply-add count a goroutine should receive at least.
const matmulGrain = 1 << 16

// MatMul performs batched matrix multiplication over the last two
// dimensions: [..., m, k] @ [..., k, n] → [..., m, n].
// Leading (batch) dimensions broadcast.
func (t *Tensor) MatMul(other *Tensor) *Tensor {
	if t.Rank() < 2 || other.Rank() < 2 {
		panic(fmt.Sprintf("tensor.MatMul: expected rank >= 2, got %v and %v", t.shape, other.shape))
	}

	m, k := t.shape[len(t.shape)-2], t.shape[len(t.shape)-1]
	k2, n := other.shape[len(other.shape)-2], other.shape[len(other.shape)-1]
	if k != k2 {
		panic(fmt.Sprintf("tensor.MatMul: inner dimensions differ: %v @ %v", t.shape, other.shape))
	}

	aBatch := t.shape[:len(t.shape)-2]
	bBatch := other.shape[:len(other.shape)-2]
	batch, err := BroadcastShapes(aBatch, bBatch)
	if err != nil {
		panic(fmt.Sprintf("tensor.MatMul: %v", err))
	}

	shape := append(batch.Clone(), m, n)
	out := newUninit(shape)

	count := batch.NumElements()
	as := broadcastStrides(aBatch, batch)
	bs := broadcastStrides(bBatch, batch)
	aOff := make([]int, count)
	bOff := make([]int, count)
	idx := make([]int, len(batch))
	ai, bi := 0, 0
	for i := 0; i < count; i++ {
		aOff[i], bOff[i] = ai, bi
		for d := len(batch) - 1; d >= 0; d-- {
			idx[d]++
			ai += as[d]
			bi += bs[d]
			if idx[d] < batch[d] {
				break
			}
			ai -= as[d] * batch[d]
			bi -= bs[d] * batch[d]
			idx[d] = 0
		}
	}

	parallel.For(count, func(i int) {
		a, b := aOff[i], bOff[i]
		sgemm(false,
			t.data[a*m*k:(a+1)*m*k], m, k,
			other.data[b*k*n:(b+1)*k*n], n,
			out.data[i*m*n:(i+1)*m*n])
	}, workers.WithCost(m*k*n, matmulGrain))
	return out
}

// Linear computes x @ w.T + b for x of shape [..., in], w of shape
// [out, in] and an optional bias of shape [out]. The result has shape
// [..., out].
func Linear(x, w, b *Tensor) *Tensor {
	if w.Rank() != 2 {
		panic(fmt.Sprintf("tensor.Linear: expected 2D weight, got %v", w.shape))
	}
	outFeatures, inFeatures := w.shape[0], w.shape[1]
	if x.Dim(-1) != inFeatures {
		panic(fmt.Sprintf("tensor.Linear: expected input with %d features, got shape %v", inFeatures, x.shape))
	}
	if b != nil && (b.Rank() != 1 || b.shape[0] != outFeatures) {
		panic(fmt.Sprintf("tensor.Linear: bias shape %v does not match %d outputs", b.shape, outFeatures))
	}

	rows := len(x.data) / inFeatures
	shape := x.shape.Clone()
	shape[len(shape)-1] = outFeatures
	out := newUninit(shape)

	sgemm(true, x.data, rows, inFeatures, w.data, outFeatures, out.data)

	if b != nil {
		for r := 0; r < rows; r++ {
			row := out.data[r*outFeatures : (r+1)*outFeatures]
			for j := range row {
				row[j] += b.data[j]
			}
		}
	}
	return out
}

// sgemm computes c = a @ b (or a @ b.T when transB is set) for row-major
// a [m, k], b [k, n] (or [n, k]) and c [m, n].
func sgemm(transB bool, a []float32, m, k int, b []float32, n int, c []float32) {
	A := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	C := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}

	tB := blas.NoTrans
	B := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tB = blas.Trans
		B = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
	}

	blas32.Gemm(blas.NoTrans, tB, 1, A, B, 0, C)
}
