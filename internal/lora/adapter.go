package lora

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// AdapterPrefix starts the name of every adapter parameter.
const AdapterPrefix = "lora_"

// Adapter is a pair of low-rank factors whose product is added to a
// projection weight: W' = W + B·A.
//
// B [d, r] starts at zero and A [r, d] is drawn from N(0, 1), so the delta
// is exactly zero until B is trained.
type Adapter struct {
	B *nn.Parameter // [d, r]
	A *nn.Parameter // [r, d]
}

// NewAdapter creates the factors for a d×d projection. Parameters are named
// lora_<target>_matrix_B and lora_<target>_matrix_A.
func NewAdapter(target string, d, rank int, rng *rand.Rand) *Adapter {
	if d <= 0 || rank <= 0 {
		panic(fmt.Sprintf("lora: invalid adapter size d=%d rank=%d", d, rank))
	}
	name := AdapterPrefix + target + "_matrix_"
	return &Adapter{
		B: nn.NewParameter(name+"B", tensor.Zeros(tensor.Shape{d, rank}), nn.RoleAdapter),
		A: nn.NewParameter(name+"A", tensor.Randn(tensor.Shape{rank, d}, rng), nn.RoleAdapter),
	}
}

// Rank returns the inner dimension r.
func (a *Adapter) Rank() int {
	return a.A.Tensor().Dim(0)
}

// Delta returns B·A [d, d]. It is recomputed on every call.
func (a *Adapter) Delta() *tensor.Tensor {
	return a.B.Tensor().MatMul(a.A.Tensor())
}

// Forward computes x @ (B·A).T without bias.
func (a *Adapter) Forward(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Linear(x, a.Delta(), nil)
}

// Parameters returns [B, A].
func (a *Adapter) Parameters() []*nn.Parameter {
	return []*nn.Parameter{a.B, a.A}
}
