package lora

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/roberta"
	"github.com/born-ml/lora/internal/tensor"
)

// SelfAttention is a drop-in replacement for roberta.SelfAttention that adds
// low-rank updates to the query and value projections.
//
// The key projection, the relative position embedding and the attention
// algorithm itself are the base module's; the adapted module passes its own
// query and value projections to roberta.SelfAttention.Attend.
//
// Parameter names are the base names (query.weight, key.bias, ...) plus
// lora_query_matrix_B, lora_query_matrix_A, lora_value_matrix_B and
// lora_value_matrix_A.
type SelfAttention struct {
	Base         *roberta.SelfAttention
	QueryAdapter *Adapter
	ValueAdapter *Adapter
}

// NewSelfAttention creates an adapted self-attention block for cfg with the
// given rank. Adapters are sized to the base's all-head width.
func NewSelfAttention(cfg roberta.Config, rank int, rng *rand.Rand) *SelfAttention {
	base := roberta.NewSelfAttention(cfg, rng)
	return &SelfAttention{
		Base:         base,
		QueryAdapter: NewAdapter("query", base.AllHeadSize, rank, rng),
		ValueAdapter: NewAdapter("value", base.AllHeadSize, rank, rng),
	}
}

// Query computes query(x) + x @ (B_q·A_q).T.
func (s *SelfAttention) Query(x *tensor.Tensor) *tensor.Tensor {
	return s.Base.Query.Forward(x).Add(s.QueryAdapter.Forward(x))
}

// Value computes value(x) + x @ (B_v·A_v).T.
func (s *SelfAttention) Value(x *tensor.Tensor) *tensor.Tensor {
	return s.Base.Value.Forward(x).Add(s.ValueAdapter.Forward(x))
}

// Forward implements roberta.SelfAttentionModule.
func (s *SelfAttention) Forward(in roberta.AttentionInput) roberta.AttentionOutput {
	return s.Base.Attend(in, s.Query, s.Value)
}

// Rank returns the adapters' rank.
func (s *SelfAttention) Rank() int {
	return s.QueryAdapter.Rank()
}

// Parameters returns the four adapter factors.
func (s *SelfAttention) Parameters() []*nn.Parameter {
	return append(s.QueryAdapter.Parameters(), s.ValueAdapter.Parameters()...)
}

// Children returns the base module's children, so base parameters keep
// their names.
func (s *SelfAttention) Children() []nn.Child {
	return s.Base.Children()
}
