package roberta

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

// Embeddings builds the encoder input from word, position and token type
// embeddings followed by LayerNorm and dropout.
//
// Position ids follow RoBERTa: padding tokens get PadTokenID, real tokens
// count up from PadTokenID+1 (shifted by the cached past length).
//
// Every parameter of the block carries nn.RoleEmbedding.
type Embeddings struct {
	WordEmbeddings      *nn.Embedding
	PositionEmbeddings  *nn.Embedding
	TokenTypeEmbeddings *nn.Embedding
	LayerNorm           *nn.LayerNorm
	Dropout             *nn.Dropout

	padID        int
	positionType string
}

// NewEmbeddings creates the embedding block for cfg.
func NewEmbeddings(cfg Config, rng *rand.Rand) *Embeddings {
	std := cfg.InitializerRange
	e := &Embeddings{
		WordEmbeddings:      nn.NewEmbedding(cfg.VocabSize, cfg.HiddenSize, std, rng),
		PositionEmbeddings:  nn.NewEmbedding(cfg.MaxPositionEmbeddings, cfg.HiddenSize, std, rng),
		TokenTypeEmbeddings: nn.NewEmbedding(cfg.TypeVocabSize, cfg.HiddenSize, std, rng),
		LayerNorm:           nn.NewLayerNorm(cfg.HiddenSize, cfg.LayerNormEps),
		Dropout:             nn.NewDropout(cfg.HiddenDropoutProb, rng),
		padID:               cfg.PadTokenID,
		positionType:        cfg.PositionEmbeddingType,
	}

	// padding_idx rows start at zero
	zeroRow(e.WordEmbeddings, cfg.PadTokenID)
	zeroRow(e.PositionEmbeddings, cfg.PadTokenID)

	nn.TagAll(e, nn.RoleEmbedding)
	return e
}

func zeroRow(e *nn.Embedding, row int) {
	if row < 0 || row >= e.NumEmbed {
		return
	}
	data := e.Weight.Tensor().Data()
	clear(data[row*e.EmbedDim : (row+1)*e.EmbedDim])
}

// Forward embeds ids [batch][seq]. tokenTypes may be nil (all zeros).
// pastLength offsets the position ids during incremental decoding.
func (e *Embeddings) Forward(ids, tokenTypes [][]int, pastLength int) *tensor.Tensor {
	x := e.WordEmbeddings.Lookup(ids)

	if tokenTypes == nil {
		tokenTypes = make([][]int, len(ids))
		for i := range ids {
			tokenTypes[i] = make([]int, len(ids[i]))
		}
	}
	x = x.Add(e.TokenTypeEmbeddings.Lookup(tokenTypes))

	if e.positionType == PositionAbsolute {
		x = x.Add(e.PositionEmbeddings.Lookup(e.PositionIDs(ids, pastLength)))
	}

	x = e.LayerNorm.Forward(x)
	return e.Dropout.Forward(x)
}

// PositionIDs computes RoBERTa position ids: non-padding tokens are numbered
// from padID+1+pastLength in order; padding tokens get padID.
func (e *Embeddings) PositionIDs(ids [][]int, pastLength int) [][]int {
	out := make([][]int, len(ids))
	for b, row := range ids {
		out[b] = make([]int, len(row))
		count := 0
		for i, id := range row {
			if id == e.padID {
				out[b][i] = e.padID
				continue
			}
			count++
			pos := count + pastLength + e.padID
			if pos >= e.PositionEmbeddings.NumEmbed {
				panic(fmt.Sprintf("roberta: position %d exceeds max_position_embeddings %d",
					pos, e.PositionEmbeddings.NumEmbed))
			}
			out[b][i] = pos
		}
	}
	return out
}

// Parameters returns nil: all parameters live in children.
func (e *Embeddings) Parameters() []*nn.Parameter {
	return nil
}

// Children returns the embedding tables, LayerNorm and dropout.
func (e *Embeddings) Children() []nn.Child {
	return []nn.Child{
		{Name: "word_embeddings", Module: e.WordEmbeddings},
		{Name: "position_embeddings", Module: e.PositionEmbeddings},
		{Name: "token_type_embeddings", Module: e.TokenTypeEmbeddings},
		{Name: "LayerNorm", Module: e.LayerNorm},
		{Name: "dropout", Module: e.Dropout},
	}
}
