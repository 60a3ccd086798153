package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/lora/internal/tensor"
)

// ActivationFunc is an element-wise activation.
type ActivationFunc func(*tensor.Tensor) *tensor.Tensor

// GELU applies the exact (erf-based) Gaussian Error Linear Unit.
func GELU(x *tensor.Tensor) *tensor.Tensor {
	return x.Map(func(v float32) float32 {
		return float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
	})
}

// GELUTanh applies the tanh approximation of GELU ("gelu_new").
func GELUTanh(x *tensor.Tensor) *tensor.Tensor {
	c := math.Sqrt(2 / math.Pi)
	return x.Map(func(v float32) float32 {
		f := float64(v)
		return float32(0.5 * f * (1 + math.Tanh(c*(f+0.044715*f*f*f))))
	})
}

// ReLU applies max(0, x).
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	return x.Map(func(v float32) float32 { return max(v, 0) })
}

// Tanh applies the hyperbolic tangent.
func Tanh(x *tensor.Tensor) *tensor.Tensor {
	return x.Map(func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// SiLU applies x * sigmoid(x).
func SiLU(x *tensor.Tensor) *tensor.Tensor {
	return x.Map(func(v float32) float32 { return v / (1 + float32(math.Exp(float64(-v)))) })
}

// Activation resolves a Hugging Face "hidden_act" name.
func Activation(name string) (ActivationFunc, error) {
	switch name {
	case "gelu":
		return GELU, nil
	case "gelu_new", "gelu_pytorch_tanh":
		return GELUTanh, nil
	case "relu":
		return ReLU, nil
	case "tanh":
		return Tanh, nil
	case "silu", "swish":
		return SiLU, nil
	default:
		return nil, fmt.Errorf("unsupported activation %q", name)
	}
}
