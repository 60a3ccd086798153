package roberta

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/born-ml/lora/internal/loader"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/serialization"
)

// WeightsFile is the file SavePretrained writes weights to.
const WeightsFile = "model.safetensors"

// FromPretrained resolves id through repo, builds a model from its
// config.json and loads the weights non-strictly. Parameters absent from
// the checkpoint keep their random initialization and are logged.
//
// Errors from repo are returned wrapped, so errors.Is(err,
// loader.ErrNotFound) holds for unknown identifiers.
func FromPretrained(repo loader.Repository, id string, rng *rand.Rand) (*Model, error) {
	pre, err := repo.Load(id)
	if err != nil {
		return nil, fmt.Errorf("loading pretrained model: %w", err)
	}

	cfg := DefaultConfig()
	if err := pre.DecodeConfig(&cfg); err != nil {
		return nil, err
	}

	model, err := New(cfg, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}

	res, err := nn.LoadStateDict(model, pre.Tensors, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	if len(res.Missing) > 0 {
		slog.Warn("parameters not found in checkpoint, using random init", "id", id, "missing", res.Missing)
	}
	if len(res.Unexpected) > 0 {
		slog.Debug("unused checkpoint tensors", "id", id, "unexpected", res.Unexpected)
	}
	return model, nil
}

// SavePretrained writes config.json and model.safetensors for model into dir,
// in the layout loader.Dir reads.
func SavePretrained(dir string, model *Model) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	config, err := json.MarshalIndent(model.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, loader.ConfigFile), config, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return serialization.WriteFile(filepath.Join(dir, WeightsFile), nn.StateDict(model), nil, serialization.WriteOptions{})
}
