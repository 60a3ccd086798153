package lora

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/roberta"
	"github.com/born-ml/lora/internal/tensor"
)

// HeadPrefix starts the name of every fine-tune head module.
const HeadPrefix = "finetune_head_"

// ClassifierName is the module name of the classification head.
const ClassifierName = HeadPrefix + "classifier"

// ClassificationHead is a sequence classification head over the first
// token: dropout → dense → tanh → dropout → out_proj.
//
// All parameters carry nn.RoleHead.
type ClassificationHead struct {
	Dense   *nn.Linear
	Dropout *nn.Dropout
	OutProj *nn.Linear
}

// NewClassificationHead creates a head producing numLabels logits.
func NewClassificationHead(cfg roberta.Config, numLabels int, rng *rand.Rand) *ClassificationHead {
	h := &ClassificationHead{
		Dense:   nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize, true, cfg.InitializerRange, rng),
		Dropout: nn.NewDropout(cfg.HiddenDropoutProb, rng),
		OutProj: nn.NewLinear(cfg.HiddenSize, numLabels, true, cfg.InitializerRange, rng),
	}
	nn.TagAll(h, nn.RoleHead)
	return h
}

// NumLabels returns the number of logits.
func (h *ClassificationHead) NumLabels() int {
	return h.OutProj.OutFeatures
}

// Forward maps hidden [batch, seq, hidden] to logits [batch, labels].
func (h *ClassificationHead) Forward(hidden *tensor.Tensor) *tensor.Tensor {
	x := hidden.Narrow(1, 0, 1).Reshape(hidden.Dim(0), hidden.Dim(2))
	x = nn.Tanh(h.Dense.Forward(h.Dropout.Forward(x)))
	return h.OutProj.Forward(h.Dropout.Forward(x))
}

// Parameters returns nil.
func (h *ClassificationHead) Parameters() []*nn.Parameter {
	return nil
}

// Children returns dense, dropout and out_proj.
func (h *ClassificationHead) Children() []nn.Child {
	return []nn.Child{
		{Name: "dense", Module: h.Dense},
		{Name: "dropout", Module: h.Dropout},
		{Name: "out_proj", Module: h.OutProj},
	}
}
