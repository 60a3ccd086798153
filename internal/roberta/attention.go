package roberta

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// KeyValue is a cached key/value pair in per-head layout [batch, heads, seq, head_size].
type KeyValue struct {
	Key   *tensor.Tensor
	Value *tensor.Tensor
}

// Len returns the cached sequence length, or 0 for a nil cache.
func (kv *KeyValue) Len() int {
	if kv == nil || kv.Key == nil {
		return 0
	}
	return kv.Key.Dim(2)
}

// AttentionInput carries the arguments of a self-attention forward pass.
//
// Masks are additive and already extended: Mask broadcasts against scores
// [batch, heads, query, key] (typically [batch, 1, 1, key] or
// [batch, 1, query, key]). HeadMask is multiplicative and broadcasts the same
// way (typically [1, heads, 1, 1]).
type AttentionInput struct {
	Hidden           *tensor.Tensor // [batch, seq, hidden]
	Mask             *tensor.Tensor // additive attention mask, optional
	HeadMask         *tensor.Tensor // multiplicative head mask, optional
	EncoderHidden    *tensor.Tensor // cross-attention source [batch, enc_seq, hidden], optional
	EncoderMask      *tensor.Tensor // additive cross-attention mask, optional
	Past             *KeyValue      // cached key/value, optional
	OutputAttentions bool
}

// AttentionOutput is the result of a self-attention forward pass.
type AttentionOutput struct {
	Context *tensor.Tensor // [batch, seq, hidden]
	Probs   *tensor.Tensor // [batch, heads, query, key], only when requested
	Present *KeyValue      // updated cache, decoder layers only
}

// SelfAttentionModule is the slot type of Attention.Self. SelfAttention and
// any adapted replacement satisfy it.
type SelfAttentionModule interface {
	nn.Module
	Forward(in AttentionInput) AttentionOutput
}

// Projection maps hidden states [..., hidden] to [..., all_head_size].
type Projection func(x *tensor.Tensor) *tensor.Tensor

// SelfAttention is the BERT/RoBERTa multi-head self-attention block
// (encoder.layer.N.attention.self).
//
// Supports:
//   - bidirectional self-attention (encoder)
//   - causal self-attention with an incremental key/value cache (decoder)
//   - cross-attention over encoder states, with cached keys/values
//   - relative_key / relative_key_query position scores
type SelfAttention struct {
	Query             *nn.Linear
	Key               *nn.Linear
	Value             *nn.Linear
	Dropout           *nn.Dropout
	DistanceEmbedding *nn.Embedding // nil for absolute position embeddings

	NumHeads     int
	HeadSize     int
	AllHeadSize  int
	PositionType string
	MaxPositions int
	IsDecoder    bool
}

// NewSelfAttention creates a self-attention block for cfg.
func NewSelfAttention(cfg Config, rng *rand.Rand) *SelfAttention {
	if cfg.HiddenSize%cfg.NumAttentionHeads != 0 {
		panic(fmt.Sprintf("roberta: hidden size %d is not a multiple of %d heads",
			cfg.HiddenSize, cfg.NumAttentionHeads))
	}

	all := cfg.NumAttentionHeads * cfg.HeadSize()
	std := cfg.InitializerRange
	a := &SelfAttention{
		Query:        nn.NewLinear(cfg.HiddenSize, all, true, std, rng),
		Key:          nn.NewLinear(cfg.HiddenSize, all, true, std, rng),
		Value:        nn.NewLinear(cfg.HiddenSize, all, true, std, rng),
		Dropout:      nn.NewDropout(cfg.AttentionProbsDropoutProb, rng),
		NumHeads:     cfg.NumAttentionHeads,
		HeadSize:     cfg.HeadSize(),
		AllHeadSize:  all,
		PositionType: cfg.PositionEmbeddingType,
		MaxPositions: cfg.MaxPositionEmbeddings,
		IsDecoder:    cfg.IsDecoder,
	}
	if cfg.Relative() {
		a.DistanceEmbedding = nn.NewEmbedding(2*cfg.MaxPositionEmbeddings-1, a.HeadSize, std, rng)
	}
	return a
}

// Forward runs attention with the block's own query and value projections.
func (a *SelfAttention) Forward(in AttentionInput) AttentionOutput {
	return a.Attend(in, a.Query.Forward, a.Value.Forward)
}

// Attend runs the attention algorithm with the given query and value
// projections. Keys always use a.Key.
func (a *SelfAttention) Attend(in AttentionInput, query, value Projection) AttentionOutput {
	q := a.splitHeads(query(in.Hidden))

	mask := in.Mask
	var k, v *tensor.Tensor
	switch cross := in.EncoderHidden != nil; {
	case cross && in.Past != nil:
		k, v = in.Past.Key, in.Past.Value
		mask = in.EncoderMask
	case cross:
		k = a.splitHeads(a.Key.Forward(in.EncoderHidden))
		v = a.splitHeads(value(in.EncoderHidden))
		mask = in.EncoderMask
	case in.Past != nil:
		k = tensor.Concat(2, in.Past.Key, a.splitHeads(a.Key.Forward(in.Hidden)))
		v = tensor.Concat(2, in.Past.Value, a.splitHeads(value(in.Hidden)))
	default:
		k = a.splitHeads(a.Key.Forward(in.Hidden))
		v = a.splitHeads(value(in.Hidden))
	}

	var present *KeyValue
	if a.IsDecoder {
		present = &KeyValue{Key: k, Value: v}
	}

	scores := q.MatMul(k.Transpose(-1, -2))
	if a.DistanceEmbedding != nil {
		scores = a.addRelativeScores(scores, q, k, in.Past != nil)
	}
	scores = scores.DivScalar(float32(math.Sqrt(float64(a.HeadSize))))
	if mask != nil {
		scores = scores.Add(mask)
	}

	probs := a.Dropout.Forward(scores.Softmax())
	if in.HeadMask != nil {
		probs = probs.Mul(in.HeadMask)
	}

	ctx := probs.MatMul(v).Permute(0, 2, 1, 3)
	out := AttentionOutput{
		Context: ctx.Reshape(ctx.Dim(0), ctx.Dim(1), a.AllHeadSize),
		Present: present,
	}
	if in.OutputAttentions {
		out.Probs = probs
	}
	return out
}

// splitHeads reshapes [batch, seq, all_head_size] to [batch, heads, seq, head_size].
func (a *SelfAttention) splitHeads(x *tensor.Tensor) *tensor.Tensor {
	return x.Reshape(x.Dim(0), x.Dim(1), a.NumHeads, a.HeadSize).Permute(0, 2, 1, 3)
}

// addRelativeScores adds the learned relative position terms to scores.
//
// The distance between query position l and key position r indexes
// distance_embedding at l - r + max_positions - 1. With a cache every query
// row sits at position key_length-1.
func (a *SelfAttention) addRelativeScores(scores, q, k *tensor.Tensor, useCache bool) *tensor.Tensor {
	b, h := q.Dim(0), q.Dim(1)
	ql, kl := q.Dim(2), k.Dim(2)

	dist := make([][]int, ql)
	for l := range dist {
		pos := l
		if useCache {
			pos = kl - 1
		}
		dist[l] = make([]int, kl)
		for r := range dist[l] {
			dist[l][r] = pos - r + a.MaxPositions - 1
		}
	}
	pe := a.DistanceEmbedding.Lookup(dist) // [ql, kl, d]

	// bhld,lrd->bhlr
	qs := q.Permute(2, 0, 1, 3).Reshape(ql, b*h, a.HeadSize)
	rel := qs.MatMul(pe.Transpose(1, 2)).Reshape(ql, b, h, kl).Permute(1, 2, 0, 3)
	scores = scores.Add(rel)

	if a.PositionType == PositionRelativeKeyQuery {
		// bhrd,lrd->bhlr
		ks := k.Permute(2, 0, 1, 3).Reshape(kl, b*h, a.HeadSize)
		relKey := ks.MatMul(pe.Permute(1, 2, 0)).Reshape(kl, b, h, ql).Permute(1, 2, 3, 0)
		scores = scores.Add(relKey)
	}
	return scores
}

// Parameters returns nil: all parameters live in children.
func (a *SelfAttention) Parameters() []*nn.Parameter {
	return nil
}

// Children returns query, key, value, dropout and, for relative position
// types, distance_embedding.
func (a *SelfAttention) Children() []nn.Child {
	children := []nn.Child{
		{Name: "query", Module: a.Query},
		{Name: "key", Module: a.Key},
		{Name: "value", Module: a.Value},
		{Name: "dropout", Module: a.Dropout},
	}
	if a.DistanceEmbedding != nil {
		children = append(children, nn.Child{Name: "distance_embedding", Module: a.DistanceEmbedding})
	}
	return children
}

// SelfOutput projects the attention context and applies the residual
// LayerNorm (attention.output).
type SelfOutput struct {
	Dense     *nn.Linear
	LayerNorm *nn.LayerNorm
	Dropout   *nn.Dropout
}

// NewSelfOutput creates the attention output block.
func NewSelfOutput(cfg Config, rng *rand.Rand) *SelfOutput {
	return &SelfOutput{
		Dense:     nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize, true, cfg.InitializerRange, rng),
		LayerNorm: nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Dropout:   nn.NewDropout(cfg.HiddenDropoutProb, rng),
	}
}

// Forward computes LayerNorm(dropout(dense(hidden)) + input).
func (o *SelfOutput) Forward(hidden, input *tensor.Tensor) *tensor.Tensor {
	hidden = o.Dropout.Forward(o.Dense.Forward(hidden))
	return o.LayerNorm.Forward(hidden.Add(input))
}

// Parameters returns nil.
func (o *SelfOutput) Parameters() []*nn.Parameter {
	return nil
}

// Children returns dense, LayerNorm and dropout.
func (o *SelfOutput) Children() []nn.Child {
	return []nn.Child{
		{Name: "dense", Module: o.Dense},
		{Name: "LayerNorm", Module: o.LayerNorm},
		{Name: "dropout", Module: o.Dropout},
	}
}

// Attention pairs a self-attention module with its output block. The
// self-attention slot can be swapped through SetChild.
type Attention struct {
	Self   SelfAttentionModule
	Output *SelfOutput
}

// NewAttention creates an attention block with a standard SelfAttention.
func NewAttention(cfg Config, rng *rand.Rand) *Attention {
	return &Attention{
		Self:   NewSelfAttention(cfg, rng),
		Output: NewSelfOutput(cfg, rng),
	}
}

// Forward runs self-attention and the output block. Probs and Present are
// passed through from the self-attention module.
func (a *Attention) Forward(in AttentionInput) AttentionOutput {
	out := a.Self.Forward(in)
	out.Context = a.Output.Forward(out.Context, in.Hidden)
	return out
}

// Parameters returns nil.
func (a *Attention) Parameters() []*nn.Parameter {
	return nil
}

// Children returns self and output.
func (a *Attention) Children() []nn.Child {
	return []nn.Child{
		{Name: "self", Module: a.Self},
		{Name: "output", Module: a.Output},
	}
}

// SetChild implements nn.Container. Only "self" can be replaced, and only
// with a SelfAttentionModule.
func (a *Attention) SetChild(name string, m nn.Module) error {
	if name != "self" {
		return fmt.Errorf("roberta.Attention: cannot replace child %q", name)
	}
	sa, ok := m.(SelfAttentionModule)
	if !ok {
		return fmt.Errorf("roberta.Attention: %T does not implement SelfAttentionModule", m)
	}
	a.Self = sa
	return nil
}
