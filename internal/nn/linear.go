package nn

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/tensor"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input tensor with shape [..., in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias vector with shape [out_features]
//   - y is the output tensor with shape [..., out_features]
//
// Weights are initialized from N(0, std²), biases to zeros.
//
// Example:
//
//	layer := nn.NewLinear(768, 768, true, nn.DefaultInitStd, rng)
//	output := layer.Forward(hidden) // [batch, seq, 768]
type Linear struct {
	InFeatures  int
	OutFeatures int
	Weight      *Parameter // [out_features, in_features]
	Bias        *Parameter // [out_features], nil when the layer has no bias
}

// NewLinear creates a new Linear layer.
func NewLinear(inFeatures, outFeatures int, bias bool, std float32, rng *rand.Rand) *Linear {
	l := &Linear{
		InFeatures:  inFeatures,
		OutFeatures: outFeatures,
		Weight:      NewParameter("weight", Normal(tensor.Shape{outFeatures, inFeatures}, std, rng)),
	}
	if bias {
		l.Bias = NewParameter("bias", tensor.Zeros(tensor.Shape{outFeatures}), RoleBias)
	}
	return l
}

// Forward computes x @ W.T + b.
func (l *Linear) Forward(x *tensor.Tensor) *tensor.Tensor {
	var b *tensor.Tensor
	if l.Bias != nil {
		b = l.Bias.Tensor()
	}
	return tensor.Linear(x, l.Weight.Tensor(), b)
}

// Parameters returns [weight, bias], or [weight] without bias.
func (l *Linear) Parameters() []*Parameter {
	if l.Bias != nil {
		return []*Parameter{l.Weight, l.Bias}
	}
	return []*Parameter{l.Weight}
}

// Children returns nil: Linear is a leaf.
func (l *Linear) Children() []Child {
	return nil
}
