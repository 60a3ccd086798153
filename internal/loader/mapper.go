package loader

import "strings"

// WeightMapper maps checkpoint weight names to the encoder's parameter names.
type WeightMapper interface {
	// MapName converts a checkpoint name. ok is false for tensors that do
	// not belong to the encoder and should be dropped.
	MapName(name string) (mapped string, ok bool)
}

// RobertaMapper normalizes BERT-family checkpoints:
//   - roberta.embeddings.word_embeddings.weight -> embeddings.word_embeddings.weight
//   - bert.encoder.layer.0.output.LayerNorm.gamma -> encoder.layer.0.output.LayerNorm.weight
//   - lm_head.*, classifier.*, cls.* -> dropped (task heads)
type RobertaMapper struct{}

var taskHeadPrefixes = []string{"lm_head.", "classifier.", "cls.", "qa_outputs."}

// MapName implements WeightMapper.
func (RobertaMapper) MapName(name string) (string, bool) {
	for _, prefix := range taskHeadPrefixes {
		if strings.HasPrefix(name, prefix) {
			return "", false
		}
	}

	for _, prefix := range []string{"roberta.", "bert.", "model."} {
		if strings.HasPrefix(name, prefix) {
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}

	switch {
	case strings.HasSuffix(name, "LayerNorm.gamma"):
		name = strings.TrimSuffix(name, "gamma") + "weight"
	case strings.HasSuffix(name, "LayerNorm.beta"):
		name = strings.TrimSuffix(name, "beta") + "bias"
	}
	return name, true
}
