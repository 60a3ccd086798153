// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package roberta provides a RoBERTa/BERT-style transformer encoder whose
// parameter names match Hugging Face checkpoints.
//
// Example:
//
//	rng := rand.New(rand.NewPCG(1, 2))
//	model, err := roberta.FromPretrained(loader.Dir{Root: "/models"}, "roberta-base", rng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	out := model.Forward(roberta.Input{
//	    IDs:  [][]int{{0, 31414, 232, 2, 1}},
//	    Mask: [][]float32{{1, 1, 1, 1, 0}},
//	})
//	fmt.Println(out.LastHidden.Shape()) // [1 5 768]
package roberta

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/roberta"
	"github.com/born-ml/lora/loader"
)

// Position embedding types.
const (
	PositionAbsolute         = roberta.PositionAbsolute
	PositionRelativeKey      = roberta.PositionRelativeKey
	PositionRelativeKeyQuery = roberta.PositionRelativeKeyQuery
)

// Config mirrors a Hugging Face RoBERTa/BERT config.json.
type Config = roberta.Config

// DefaultConfig returns the roberta-base configuration.
func DefaultConfig() Config {
	return roberta.DefaultConfig()
}

// Model is the encoder (or decoder when Config.IsDecoder is set).
type Model = roberta.Model

// Input is a batch for Model.Forward.
type Input = roberta.Input

// Output is the result of Model.Forward.
type Output = roberta.Output

// KeyValue is a cached key/value pair in per-head layout.
type KeyValue = roberta.KeyValue

// LayerCache holds one layer's cached keys and values.
type LayerCache = roberta.LayerCache

// SelfAttention is the standard multi-head self-attention block.
type SelfAttention = roberta.SelfAttention

// New creates a randomly initialized model.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	return roberta.New(cfg, rng)
}

// FromPretrained resolves id through repo and loads its weights.
func FromPretrained(repo loader.Repository, id string, rng *rand.Rand) (*Model, error) {
	return roberta.FromPretrained(repo, id, rng)
}

// SavePretrained writes config.json and model.safetensors into dir.
func SavePretrained(dir string, model *Model) error {
	return roberta.SavePretrained(dir, model)
}
