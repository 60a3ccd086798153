package roberta

import (
	"errors"
	"fmt"
)

// Position embedding types.
const (
	PositionAbsolute         = "absolute"
	PositionRelativeKey      = "relative_key"
	PositionRelativeKeyQuery = "relative_key_query"
)

// Config mirrors the fields of a Hugging Face RoBERTa/BERT config.json that
// the encoder needs. Unknown fields are ignored when decoding.
//
// Example:
//
//	cfg := roberta.DefaultConfig()
//	cfg.NumHiddenLayers = 6
//	model, err := roberta.New(cfg, rand.New(rand.NewPCG(1, 2)))
//	if err != nil {
//	    return err
//	}
type Config struct {
	ModelType                 string  `json:"model_type"`
	VocabSize                 int     `json:"vocab_size"`
	HiddenSize                int     `json:"hidden_size"`
	NumHiddenLayers           int     `json:"num_hidden_layers"`
	NumAttentionHeads         int     `json:"num_attention_heads"`
	IntermediateSize          int     `json:"intermediate_size"`
	HiddenAct                 string  `json:"hidden_act"`
	HiddenDropoutProb         float32 `json:"hidden_dropout_prob"`
	AttentionProbsDropoutProb float32 `json:"attention_probs_dropout_prob"`
	MaxPositionEmbeddings     int     `json:"max_position_embeddings"`
	TypeVocabSize             int     `json:"type_vocab_size"`
	InitializerRange          float32 `json:"initializer_range"`
	LayerNormEps              float32 `json:"layer_norm_eps"`
	PadTokenID                int     `json:"pad_token_id"`
	PositionEmbeddingType     string  `json:"position_embedding_type"`
	IsDecoder                 bool    `json:"is_decoder"`
	AddCrossAttention         bool    `json:"add_cross_attention"`

	// AddPoolingLayer is not part of config.json; it selects whether the
	// model carries the first-token pooler.
	AddPoolingLayer bool `json:"-"`
}

// DefaultConfig returns the roberta-base configuration.
func DefaultConfig() Config {
	return Config{
		ModelType:                 "roberta",
		VocabSize:                 50265,
		HiddenSize:                768,
		NumHiddenLayers:           12,
		NumAttentionHeads:         12,
		IntermediateSize:          3072,
		HiddenAct:                 "gelu",
		HiddenDropoutProb:         0.1,
		AttentionProbsDropoutProb: 0.1,
		MaxPositionEmbeddings:     514,
		TypeVocabSize:             1,
		InitializerRange:          0.02,
		LayerNormEps:              1e-5,
		PadTokenID:                1,
		PositionEmbeddingType:     PositionAbsolute,
		AddPoolingLayer:           true,
	}
}

// HeadSize returns the per-head width.
func (c Config) HeadSize() int {
	return c.HiddenSize / c.NumAttentionHeads
}

// Relative reports whether attention uses learned relative position scores.
func (c Config) Relative() bool {
	return c.PositionEmbeddingType == PositionRelativeKey || c.PositionEmbeddingType == PositionRelativeKeyQuery
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value int
	}{
		{"vocab_size", c.VocabSize},
		{"hidden_size", c.HiddenSize},
		{"num_hidden_layers", c.NumHiddenLayers},
		{"num_attention_heads", c.NumAttentionHeads},
		{"intermediate_size", c.IntermediateSize},
		{"max_position_embeddings", c.MaxPositionEmbeddings},
		{"type_vocab_size", c.TypeVocabSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}

	if c.NumAttentionHeads > 0 && c.HiddenSize%c.NumAttentionHeads != 0 {
		errs = append(errs, fmt.Errorf("hidden_size (%d) is not a multiple of num_attention_heads (%d)",
			c.HiddenSize, c.NumAttentionHeads))
	}

	switch c.PositionEmbeddingType {
	case PositionAbsolute, PositionRelativeKey, PositionRelativeKeyQuery:
	default:
		errs = append(errs, fmt.Errorf("unknown position_embedding_type %q", c.PositionEmbeddingType))
	}

	if c.PadTokenID < 0 || (c.VocabSize > 0 && c.PadTokenID >= c.VocabSize) {
		errs = append(errs, fmt.Errorf("pad_token_id %d out of range for vocab_size %d", c.PadTokenID, c.VocabSize))
	}

	if c.AddCrossAttention && !c.IsDecoder {
		errs = append(errs, errors.New("add_cross_attention requires is_decoder"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
