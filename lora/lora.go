// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lora provides Low-Rank Adaptation (LoRA) fine-tuning for RoBERTa
// encoders.
//
// # Overview
//
// New loads a pretrained encoder, replaces every self-attention module with
// one that adds trainable low-rank updates to its query and value
// projections, and freezes everything else except the parameter kinds the
// options keep trainable:
//
//	query'(x) = query(x) + x @ (B_q·A_q).T
//	value'(x) = value(x) + x @ (B_v·A_v).T
//
// B starts at zero, so the wrapped model initially computes exactly what the
// pretrained model does.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/lora/loader"
//	    "github.com/born-ml/lora/lora"
//	    "github.com/born-ml/lora/roberta"
//	)
//
//	func main() {
//	    repo := loader.Dir{Root: "/models"}
//
//	    opts := lora.DefaultOptions() // roberta-base, rank 8
//	    opts.NumLabels = 2
//
//	    w, err := lora.New(repo, opts)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    trainable, total := w.ParameterCount()
//	    fmt.Printf("training %d of %d parameters\n", trainable, total)
//
//	    logits, err := w.Classify(roberta.Input{IDs: [][]int{{0, 31414, 2}}})
//	    ...
//
//	    // Persist and restore
//	    if err := w.Save("adapter.safetensors", lora.SaveOptions{TrainableOnly: true}); err != nil {
//	        log.Fatal(err)
//	    }
//	    restored, err := lora.Load(repo, lora.Checkpoint{Path: "adapter.safetensors"})
//	}
package lora

import (
	"math/rand/v2"

	"github.com/born-ml/lora/internal/lora"
	"github.com/born-ml/lora/loader"
	"github.com/born-ml/lora/nn"
	"github.com/born-ml/lora/roberta"
)

// Name prefixes of adapter and fine-tune head parameters.
const (
	AdapterPrefix = lora.AdapterPrefix
	HeadPrefix    = lora.HeadPrefix
)

// Errors.
var (
	ErrInvalidRank  = lora.ErrInvalidRank
	ErrNoCheckpoint = lora.ErrNoCheckpoint
)

// IntegrityError reports that an adapted module's parameter names differ
// from the module it replaces.
type IntegrityError = lora.IntegrityError

// Options configures a Wrapper.
type Options = lora.Options

// DefaultOptions returns roberta-base, rank 8, biases and layer norms
// trainable, embeddings frozen, no head.
func DefaultOptions() Options {
	return lora.DefaultOptions()
}

// Policy decides which parameters stay trainable.
type Policy = lora.Policy

// Wrapper is a pretrained encoder with LoRA adapters and a freezing policy
// applied.
type Wrapper = lora.Wrapper

// New loads opts.ModelID from repo, injects adapters and freezes the rest.
func New(repo loader.Repository, opts Options) (*Wrapper, error) {
	return lora.New(repo, opts)
}

// State is a saved wrapper.
type State = lora.State

// SaveOptions configures Wrapper.State and Wrapper.Save.
type SaveOptions = lora.SaveOptions

// Checkpoint names the state to Load: a file path or an in-memory State.
type Checkpoint = lora.Checkpoint

// Load rebuilds a wrapper from a checkpoint.
func Load(repo loader.Repository, ckpt Checkpoint) (*Wrapper, error) {
	return lora.Load(repo, ckpt)
}

// ReadState reads a state written by Wrapper.Save.
func ReadState(path string) (*State, error) {
	return lora.ReadState(path)
}

// SelfAttention is the adapted self-attention module.
type SelfAttention = lora.SelfAttention

// NewSelfAttention creates an adapted self-attention block.
func NewSelfAttention(cfg roberta.Config, rank int, rng *rand.Rand) *SelfAttention {
	return lora.NewSelfAttention(cfg, rank, rng)
}

// ReplaceAttention adapts every standard self-attention module under root
// and returns how many were replaced.
func ReplaceAttention(root nn.Module, cfg roberta.Config, rank int, rng *rand.Rand) (int, error) {
	return lora.ReplaceAttention(root, cfg, rank, rng)
}

// Freeze applies p to every parameter under root and returns the number of
// trainable parameters.
func Freeze(root nn.Module, p Policy) int {
	return lora.Freeze(root, p)
}
