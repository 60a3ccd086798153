package nn

import (
	"math"

	"github.com/born-ml/lora/internal/tensor"
)

// LayerNorm applies Layer Normalization over the last dimension.
//
// Formula: Y = weight * (X - mean(X)) / sqrt(var(X) + eps) + bias
//
// Parameter names follow the PyTorch convention ("weight", "bias") so
// checkpoints load without renaming.
type LayerNorm struct {
	Weight  *Parameter // learnable scale [d_model]
	Bias    *Parameter // learnable shift [d_model]
	Epsilon float32    // numerical stability constant
}

// NewLayerNorm creates a new LayerNorm layer with weight ones and bias zeros.
func NewLayerNorm(normalizedShape int, epsilon float32) *LayerNorm {
	return &LayerNorm{
		Weight:  NewParameter("weight", tensor.Ones(tensor.Shape{normalizedShape}), RoleLayerNorm),
		Bias:    NewParameter("bias", tensor.Zeros(tensor.Shape{normalizedShape}), RoleLayerNorm, RoleBias),
		Epsilon: epsilon,
	}
}

// Forward normalizes every row of the last dimension.
func (l *LayerNorm) Forward(x *tensor.Tensor) *tensor.Tensor {
	d := x.Dim(-1)
	w := l.Weight.Tensor().Data()
	b := l.Bias.Tensor().Data()

	out := x.Clone()
	data := out.Data()
	for r := 0; r < len(data)/d; r++ {
		row := data[r*d : (r+1)*d]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(d)

		var variance float64
		for _, v := range row {
			diff := float64(v) - mean
			variance += diff * diff
		}
		variance /= float64(d)

		inv := 1 / math.Sqrt(variance+float64(l.Epsilon))
		for i, v := range row {
			row[i] = float32((float64(v)-mean)*inv)*w[i] + b[i]
		}
	}
	return out
}

// Parameters returns [weight, bias].
func (l *LayerNorm) Parameters() []*Parameter {
	return []*Parameter{l.Weight, l.Bias}
}

// Children returns nil: LayerNorm is a leaf.
func (l *LayerNorm) Children() []Child {
	return nil
}
