package roberta

import (
	"math/rand/v2"
	"strconv"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Intermediate is the feed-forward expansion: act(dense(x)).
type Intermediate struct {
	Dense      *nn.Linear
	activation nn.ActivationFunc
}

// NewIntermediate creates the feed-forward expansion block.
func NewIntermediate(cfg Config, act nn.ActivationFunc, rng *rand.Rand) *Intermediate {
	return &Intermediate{
		Dense:      nn.NewLinear(cfg.HiddenSize, cfg.IntermediateSize, true, cfg.InitializerRange, rng),
		activation: act,
	}
}

// Forward computes act(dense(x)).
func (i *Intermediate) Forward(x *tensor.Tensor) *tensor.Tensor {
	return i.activation(i.Dense.Forward(x))
}

// Parameters returns nil.
func (i *Intermediate) Parameters() []*nn.Parameter {
	return nil
}

// Children returns dense.
func (i *Intermediate) Children() []nn.Child {
	return []nn.Child{{Name: "dense", Module: i.Dense}}
}

// FeedForwardOutput is the feed-forward projection back to the hidden size
// with the residual LayerNorm.
type FeedForwardOutput struct {
	Dense     *nn.Linear
	LayerNorm *nn.LayerNorm
	Dropout   *nn.Dropout
}

// NewFeedForwardOutput creates the feed-forward output block.
func NewFeedForwardOutput(cfg Config, rng *rand.Rand) *FeedForwardOutput {
	return &FeedForwardOutput{
		Dense:     nn.NewLinear(cfg.IntermediateSize, cfg.HiddenSize, true, cfg.InitializerRange, rng),
		LayerNorm: nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Dropout:   nn.NewDropout(cfg.HiddenDropoutProb, rng),
	}
}

// Forward computes LayerNorm(dropout(dense(hidden)) + input).
func (o *FeedForwardOutput) Forward(hidden, input *tensor.Tensor) *tensor.Tensor {
	hidden = o.Dropout.Forward(o.Dense.Forward(hidden))
	return o.LayerNorm.Forward(hidden.Add(input))
}

// Parameters returns nil.
func (o *FeedForwardOutput) Parameters() []*nn.Parameter {
	return nil
}

// Children returns dense, LayerNorm and dropout.
func (o *FeedForwardOutput) Children() []nn.Child {
	return []nn.Child{
		{Name: "dense", Module: o.Dense},
		{Name: "LayerNorm", Module: o.LayerNorm},
		{Name: "dropout", Module: o.Dropout},
	}
}

// LayerCache holds one layer's cached keys and values. Cross is set only
// for layers with cross-attention.
type LayerCache struct {
	Self  *KeyValue
	Cross *KeyValue
}

// LayerInput carries the arguments of one encoder layer.
type LayerInput struct {
	Hidden           *tensor.Tensor
	Mask             *tensor.Tensor
	HeadMask         *tensor.Tensor
	EncoderHidden    *tensor.Tensor
	EncoderMask      *tensor.Tensor
	Past             *LayerCache
	OutputAttentions bool
}

// LayerOutput is the result of one encoder layer.
type LayerOutput struct {
	Hidden          *tensor.Tensor
	Attentions      *tensor.Tensor
	CrossAttentions *tensor.Tensor
	Present         *LayerCache // decoder layers only
}

// Layer is one transformer block: attention, optional cross-attention and
// the feed-forward network.
type Layer struct {
	Attention      *Attention
	CrossAttention *Attention // nil unless the layer is a decoder with cross-attention
	Intermediate   *Intermediate
	Output         *FeedForwardOutput

	isDecoder bool
}

// NewLayer creates a transformer block.
func NewLayer(cfg Config, act nn.ActivationFunc, rng *rand.Rand) *Layer {
	l := &Layer{
		Attention:    NewAttention(cfg, rng),
		Intermediate: NewIntermediate(cfg, act, rng),
		Output:       NewFeedForwardOutput(cfg, rng),
		isDecoder:    cfg.IsDecoder,
	}
	if cfg.AddCrossAttention {
		// cross-attention always uses absolute positions
		crossCfg := cfg
		crossCfg.PositionEmbeddingType = PositionAbsolute
		l.CrossAttention = NewAttention(crossCfg, rng)
	}
	return l
}

// Forward runs the block.
func (l *Layer) Forward(in LayerInput) LayerOutput {
	var selfPast, crossPast *KeyValue
	if in.Past != nil {
		selfPast, crossPast = in.Past.Self, in.Past.Cross
	}

	att := l.Attention.Forward(AttentionInput{
		Hidden:           in.Hidden,
		Mask:             in.Mask,
		HeadMask:         in.HeadMask,
		Past:             selfPast,
		OutputAttentions: in.OutputAttentions,
	})
	hidden := att.Context

	out := LayerOutput{Attentions: att.Probs}
	if l.isDecoder {
		out.Present = &LayerCache{Self: att.Present}
	}

	if l.CrossAttention != nil && in.EncoderHidden != nil {
		cross := l.CrossAttention.Forward(AttentionInput{
			Hidden:           hidden,
			Mask:             in.Mask,
			HeadMask:         in.HeadMask,
			EncoderHidden:    in.EncoderHidden,
			EncoderMask:      in.EncoderMask,
			Past:             crossPast,
			OutputAttentions: in.OutputAttentions,
		})
		hidden = cross.Context
		out.CrossAttentions = cross.Probs
		if out.Present != nil {
			out.Present.Cross = cross.Present
		}
	}

	out.Hidden = l.Output.Forward(l.Intermediate.Forward(hidden), hidden)
	return out
}

// Parameters returns nil.
func (l *Layer) Parameters() []*nn.Parameter {
	return nil
}

// Children returns attention, crossattention (when present), intermediate
// and output.
func (l *Layer) Children() []nn.Child {
	children := []nn.Child{{Name: "attention", Module: l.Attention}}
	if l.CrossAttention != nil {
		children = append(children, nn.Child{Name: "crossattention", Module: l.CrossAttention})
	}
	return append(children,
		nn.Child{Name: "intermediate", Module: l.Intermediate},
		nn.Child{Name: "output", Module: l.Output},
	)
}

// Layers is an indexed list of blocks, named "0", "1", ...
type Layers []*Layer

// Parameters returns nil.
func (ls Layers) Parameters() []*nn.Parameter {
	return nil
}

// Children returns the blocks named by index.
func (ls Layers) Children() []nn.Child {
	children := make([]nn.Child, len(ls))
	for i, l := range ls {
		children[i] = nn.Child{Name: strconv.Itoa(i), Module: l}
	}
	return children
}

// EncoderInput carries the arguments of the layer stack. HeadMasks holds one
// optional multiplicative mask per layer.
type EncoderInput struct {
	Hidden           *tensor.Tensor
	Mask             *tensor.Tensor
	HeadMasks        []*tensor.Tensor
	EncoderHidden    *tensor.Tensor
	EncoderMask      *tensor.Tensor
	Past             []LayerCache
	OutputAttentions bool
}

// EncoderOutput is the result of the layer stack.
type EncoderOutput struct {
	Hidden          *tensor.Tensor
	Attentions      []*tensor.Tensor
	CrossAttentions []*tensor.Tensor
	Present         []LayerCache
}

// Encoder is the stack of transformer blocks.
type Encoder struct {
	Layer Layers
}

// NewEncoder creates cfg.NumHiddenLayers blocks.
func NewEncoder(cfg Config, act nn.ActivationFunc, rng *rand.Rand) *Encoder {
	layers := make(Layers, cfg.NumHiddenLayers)
	for i := range layers {
		layers[i] = NewLayer(cfg, act, rng)
	}
	return &Encoder{Layer: layers}
}

// Forward runs every block in order.
func (e *Encoder) Forward(in EncoderInput) EncoderOutput {
	hidden := in.Hidden
	var out EncoderOutput

	for i, layer := range e.Layer {
		li := LayerInput{
			Hidden:           hidden,
			Mask:             in.Mask,
			EncoderHidden:    in.EncoderHidden,
			EncoderMask:      in.EncoderMask,
			OutputAttentions: in.OutputAttentions,
		}
		if i < len(in.HeadMasks) {
			li.HeadMask = in.HeadMasks[i]
		}
		if i < len(in.Past) {
			li.Past = &in.Past[i]
		}

		lo := layer.Forward(li)
		hidden = lo.Hidden

		if in.OutputAttentions {
			out.Attentions = append(out.Attentions, lo.Attentions)
			if lo.CrossAttentions != nil {
				out.CrossAttentions = append(out.CrossAttentions, lo.CrossAttentions)
			}
		}
		if lo.Present != nil {
			out.Present = append(out.Present, *lo.Present)
		}
	}

	out.Hidden = hidden
	return out
}

// Parameters returns nil.
func (e *Encoder) Parameters() []*nn.Parameter {
	return nil
}

// Children returns the layer list.
func (e *Encoder) Children() []nn.Child {
	return []nn.Child{{Name: "layer", Module: e.Layer}}
}
