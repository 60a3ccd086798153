// Package loader resolves a pretrained model identifier to its weights and
// configuration.
//
// A model directory follows the Hugging Face layout:
//
//	config.json
//	model.safetensors                  (or)
//	model-00001-of-00002.safetensors   + model.safetensors.index.json (or)
//	pytorch_model.bin
//
// Identifiers are resolved against a root directory, either as a plain
// subdirectory (Root/roberta-base) or through the Hugging Face cache layout
// (Root/models--FacebookAI--roberta-base/snapshots/<revision>). An
// identifier that is itself a directory path is used as-is.
//
// Example:
//
//	repo := loader.Dir{Root: "/models"}
//	pre, err := repo.Load("roberta-base")
//	if errors.Is(err, loader.ErrNotFound) {
//	    // pick another identifier
//	}
//
// Weight names are normalized with a WeightMapper so task-specific
// checkpoints (roberta.embeddings..., LayerNorm.gamma) map onto the bare
// encoder's parameter names.
package loader
