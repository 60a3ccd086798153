package roberta

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// MaskValue is the additive value for masked positions (float32 lowest).
const MaskValue = -math.MaxFloat32

// Pooler takes the hidden state of the first token through dense + tanh.
type Pooler struct {
	Dense *nn.Linear
}

// NewPooler creates the pooler.
func NewPooler(cfg Config, rng *rand.Rand) *Pooler {
	return &Pooler{Dense: nn.NewLinear(cfg.HiddenSize, cfg.HiddenSize, true, cfg.InitializerRange, rng)}
}

// Forward pools hidden [batch, seq, hidden] into [batch, hidden].
func (p *Pooler) Forward(hidden *tensor.Tensor) *tensor.Tensor {
	first := hidden.Narrow(1, 0, 1).Reshape(hidden.Dim(0), hidden.Dim(2))
	return nn.Tanh(p.Dense.Forward(first))
}

// Parameters returns nil.
func (p *Pooler) Parameters() []*nn.Parameter {
	return nil
}

// Children returns dense.
func (p *Pooler) Children() []nn.Child {
	return []nn.Child{{Name: "dense", Module: p.Dense}}
}

// Input is a batch for Model.Forward.
//
// Mask is the usual 1/0 attention mask over past and current tokens
// ([batch][past+seq]); nil attends everywhere. HeadMask is [heads] or
// [layers, heads] with 1 keeping a head and 0 dropping it.
type Input struct {
	IDs          [][]int
	TokenTypeIDs [][]int
	Mask         [][]float32
	HeadMask     *tensor.Tensor

	EncoderHidden *tensor.Tensor // [batch, enc_seq, hidden], cross-attention only
	EncoderMask   [][]float32    // [batch][enc_seq]

	Past             []LayerCache
	OutputAttentions bool
}

// Output is the result of Model.Forward.
type Output struct {
	LastHidden      *tensor.Tensor // [batch, seq, hidden]
	Pooled          *tensor.Tensor // [batch, hidden], nil without a pooler
	Present         []LayerCache   // decoder only
	Attentions      []*tensor.Tensor
	CrossAttentions []*tensor.Tensor
}

// Model is a RoBERTa encoder (or decoder when cfg.IsDecoder). Parameter
// names match Hugging Face RobertaModel checkpoints.
type Model struct {
	Config     Config
	Embeddings *Embeddings
	Encoder    *Encoder
	Pooler     *Pooler // nil when cfg.AddPoolingLayer is false
}

// New creates a randomly initialized model.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, err := nn.Activation(cfg.HiddenAct)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Model{
		Config:     cfg,
		Embeddings: NewEmbeddings(cfg, rng),
		Encoder:    NewEncoder(cfg, act, rng),
	}
	if cfg.AddPoolingLayer {
		m.Pooler = NewPooler(cfg, rng)
	}
	return m, nil
}

// Forward runs the model on a batch.
func (m *Model) Forward(in Input) Output {
	if len(in.IDs) == 0 || len(in.IDs[0]) == 0 {
		panic("roberta: empty input ids")
	}
	batch, seq := len(in.IDs), len(in.IDs[0])

	pastLength := 0
	if len(in.Past) > 0 {
		pastLength = in.Past[0].Self.Len()
	}

	hidden := m.Embeddings.Forward(in.IDs, in.TokenTypeIDs, pastLength)

	enc := m.Encoder.Forward(EncoderInput{
		Hidden:           hidden,
		Mask:             m.extendedMask(in.Mask, batch, seq, pastLength),
		HeadMasks:        m.headMasks(in.HeadMask),
		EncoderHidden:    in.EncoderHidden,
		EncoderMask:      m.encoderMask(in),
		Past:             in.Past,
		OutputAttentions: in.OutputAttentions,
	})

	out := Output{
		LastHidden:      enc.Hidden,
		Present:         enc.Present,
		Attentions:      enc.Attentions,
		CrossAttentions: enc.CrossAttentions,
	}
	if m.Pooler != nil {
		out.Pooled = m.Pooler.Forward(enc.Hidden)
	}
	return out
}

// extendedMask turns a 1/0 mask into an additive mask. Encoders get
// [batch, 1, 1, key]; decoders combine it with a causal mask into
// [batch, 1, seq, key].
func (m *Model) extendedMask(mask [][]float32, batch, seq, pastLength int) *tensor.Tensor {
	keyLen := pastLength + seq
	if mask == nil && !m.Config.IsDecoder {
		return nil
	}
	if mask != nil && len(mask) != batch {
		panic(fmt.Sprintf("roberta: attention mask has %d rows for batch %d", len(mask), batch))
	}

	keep := func(b, k int) float32 {
		if mask == nil {
			return 1
		}
		if len(mask[b]) != keyLen {
			panic(fmt.Sprintf("roberta: attention mask row has length %d, expected %d", len(mask[b]), keyLen))
		}
		return mask[b][k]
	}

	if !m.Config.IsDecoder {
		out := tensor.Zeros(tensor.Shape{batch, 1, 1, keyLen})
		data := out.Data()
		for b := 0; b < batch; b++ {
			for k := 0; k < keyLen; k++ {
				data[b*keyLen+k] = (1 - keep(b, k)) * MaskValue
			}
		}
		return out
	}

	out := tensor.Zeros(tensor.Shape{batch, 1, seq, keyLen})
	data := out.Data()
	for b := 0; b < batch; b++ {
		for q := 0; q < seq; q++ {
			row := data[(b*seq+q)*keyLen : (b*seq+q+1)*keyLen]
			for k := range row {
				allowed := keep(b, k)
				if k > pastLength+q {
					allowed = 0
				}
				row[k] = (1 - allowed) * MaskValue
			}
		}
	}
	return out
}

func (m *Model) encoderMask(in Input) *tensor.Tensor {
	if in.EncoderHidden == nil {
		return nil
	}
	batch, encLen := in.EncoderHidden.Dim(0), in.EncoderHidden.Dim(1)
	out := tensor.Zeros(tensor.Shape{batch, 1, 1, encLen})
	if in.EncoderMask == nil {
		return out
	}

	data := out.Data()
	for b := 0; b < batch; b++ {
		if len(in.EncoderMask[b]) != encLen {
			panic(fmt.Sprintf("roberta: encoder mask row has length %d, expected %d", len(in.EncoderMask[b]), encLen))
		}
		for k, v := range in.EncoderMask[b] {
			data[b*encLen+k] = (1 - v) * MaskValue
		}
	}
	return out
}

// headMasks expands a [heads] or [layers, heads] mask to one
// [1, heads, 1, 1] mask per layer.
func (m *Model) headMasks(mask *tensor.Tensor) []*tensor.Tensor {
	if mask == nil {
		return nil
	}
	layers, heads := m.Config.NumHiddenLayers, m.Config.NumAttentionHeads

	out := make([]*tensor.Tensor, layers)
	switch {
	case mask.Rank() == 1 && mask.Dim(0) == heads:
		shared := mask.Reshape(1, heads, 1, 1)
		for i := range out {
			out[i] = shared
		}
	case mask.Rank() == 2 && mask.Dim(0) == layers && mask.Dim(1) == heads:
		for i := range out {
			out[i] = mask.Narrow(0, i, 1).Reshape(1, heads, 1, 1)
		}
	default:
		panic(fmt.Sprintf("roberta: head mask shape %v, expected [%d] or [%d, %d]", mask.Shape(), heads, layers, heads))
	}
	return out
}

// Parameters returns nil.
func (m *Model) Parameters() []*nn.Parameter {
	return nil
}

// Children returns embeddings, encoder and, when present, pooler.
func (m *Model) Children() []nn.Child {
	children := []nn.Child{
		{Name: "embeddings", Module: m.Embeddings},
		{Name: "encoder", Module: m.Encoder},
	}
	if m.Pooler != nil {
		children = append(children, nn.Child{Name: "pooler", Module: m.Pooler})
	}
	return children
}
