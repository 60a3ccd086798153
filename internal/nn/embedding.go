package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/tensor"
)

// Embedding is a lookup table that maps discrete indices to dense vectors.
//
// Architecture:
//   - Weight: [NumEmbed, EmbedDim] learnable parameter
//   - Forward: indices [n] -> embeddings [n, EmbedDim]
//
// Example:
//
//	embed := nn.NewEmbedding(50265, 768, nn.DefaultInitStd, rng)
//	vectors := embed.Forward([]int{0, 31414, 2}) // [3, 768]
type Embedding struct {
	Weight   *Parameter // [NumEmbed, EmbedDim]
	NumEmbed int        // Number of embeddings (vocabulary size)
	EmbedDim int        // Embedding dimension
}

// NewEmbedding creates a new Embedding layer initialized from N(0, std²).
func NewEmbedding(numEmbeddings, embeddingDim int, std float32, rng *rand.Rand) *Embedding {
	return &Embedding{
		Weight:   NewParameter("weight", Normal(tensor.Shape{numEmbeddings, embeddingDim}, std, rng)),
		NumEmbed: numEmbeddings,
		EmbedDim: embeddingDim,
	}
}

// Forward performs embedding lookup.
//
// Panics if any index is out of bounds [0, NumEmbed).
func (e *Embedding) Forward(ids []int) *tensor.Tensor {
	return e.Weight.Tensor().IndexSelect(ids)
}

// Lookup gathers embeddings for a [batch][seq] grid of ids and returns
// [batch, seq, EmbedDim]. All rows must have the same length.
func (e *Embedding) Lookup(ids [][]int) *tensor.Tensor {
	if len(ids) == 0 || len(ids[0]) == 0 {
		panic("Embedding.Lookup: empty ids")
	}
	seq := len(ids[0])
	flat := make([]int, 0, len(ids)*seq)
	for i, row := range ids {
		if len(row) != seq {
			panic(fmt.Sprintf("Embedding.Lookup: row %d has length %d, expected %d", i, len(row), seq))
		}
		flat = append(flat, row...)
	}
	return e.Forward(flat).Reshape(len(ids), seq, e.EmbedDim)
}

// Parameters returns the embedding weight.
func (e *Embedding) Parameters() []*Parameter {
	return []*Parameter{e.Weight}
}

// Children returns nil: Embedding is a leaf.
func (e *Embedding) Children() []Child {
	return nil
}
