// Package roberta implements a RoBERTa/BERT-style transformer encoder whose
// module tree and parameter names match Hugging Face checkpoints
// (embeddings.word_embeddings.weight,
// encoder.layer.0.attention.self.query.weight, ...).
//
// The model supports:
//   - absolute, relative_key and relative_key_query position embeddings
//   - decoder mode with a causal mask and incremental key/value caches
//   - cross-attention over encoder states
//   - additive attention masks and multiplicative head masks
//
// Attention.Self is a replaceable slot (nn.Container): any
// SelfAttentionModule can be swapped in. SelfAttention.Attend exposes the
// attention algorithm with injectable query and value projections, so an
// adapted module reuses it without copying it.
//
// Example:
//
//	model, err := roberta.FromPretrained(loader.Dir{Root: "/models"}, "roberta-base", rng)
//	if err != nil {
//	    return err
//	}
//	out := model.Forward(roberta.Input{IDs: [][]int{{0, 31414, 232, 2}}})
//	_ = out.LastHidden // [1, 4, 768]
package roberta
