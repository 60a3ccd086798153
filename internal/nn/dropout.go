package nn

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/tensor"
)

// Dropout zeroes elements with probability P during training and scales the
// survivors by 1/(1-P). In evaluation mode it is the identity.
//
// Modules start in evaluation mode, matching pretrained-model loading.
type Dropout struct {
	P        float32
	training bool
	rng      *rand.Rand
}

// NewDropout creates a Dropout layer drawing masks from rng.
func NewDropout(p float32, rng *rand.Rand) *Dropout {
	return &Dropout{P: p, rng: rng}
}

// Forward applies dropout in training mode and returns x unchanged otherwise.
func (d *Dropout) Forward(x *tensor.Tensor) *tensor.Tensor {
	if !d.training || d.P <= 0 {
		return x
	}
	if d.P >= 1 {
		return tensor.Zeros(x.Shape())
	}
	scale := 1 / (1 - d.P)
	return x.Map(func(v float32) float32 {
		if d.rng.Float32() < d.P {
			return 0
		}
		return v * scale
	})
}

// SetTraining implements Trainer.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// Training reports whether the layer is in training mode.
func (d *Dropout) Training() bool {
	return d.training
}

// Parameters returns nil: Dropout has no parameters.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}

// Children returns nil.
func (d *Dropout) Children() []Child {
	return nil
}
