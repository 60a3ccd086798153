package nn

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/tensor"
)

// DefaultInitStd is the standard deviation BERT-family models use for
// weight initialization (config "initializer_range").
const DefaultInitStd = 0.02

// Normal creates a tensor with values drawn from N(0, std²).
func Normal(shape tensor.Shape, std float32, rng *rand.Rand) *tensor.Tensor {
	return tensor.Randn(shape, rng).Scale(std)
}
