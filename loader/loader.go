// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader resolves pretrained model identifiers to weights and
// configuration.
//
// This package wraps the internal loader and exports a clean public API for
// reading Hugging Face model directories (SafeTensors, sharded SafeTensors,
// PyTorch pytorch_model.bin).
//
// Example usage:
//
//	import "github.com/born-ml/lora/loader"
//
//	repo := loader.Dir{Root: os.ExpandEnv("$HOME/.cache/huggingface/hub")}
//
//	pre, err := repo.Load("FacebookAI/roberta-base")
//	if errors.Is(err, loader.ErrNotFound) {
//	    log.Fatal("model not downloaded")
//	}
//
//	fmt.Printf("Format: %s\n", pre.Format)       // "SafeTensors"
//	fmt.Printf("Tensors: %d\n", len(pre.Tensors))
package loader

import (
	"github.com/born-ml/lora/internal/loader"
)

// Format represents the model weight format.
type Format = loader.Format

// Supported model formats.
const (
	FormatUnknown     Format = loader.FormatUnknown
	FormatSafeTensors Format = loader.FormatSafeTensors
	FormatTorch       Format = loader.FormatTorch
)

// Errors returned by Repository implementations.
var (
	ErrNotFound  = loader.ErrNotFound
	ErrNoWeights = loader.ErrNoWeights
)

// Repository resolves model identifiers to pretrained weights.
type Repository = loader.Repository

// Pretrained holds the weights and raw configuration of a resolved model.
type Pretrained = loader.Pretrained

// Dir is a Repository backed by a local directory tree.
//
// An identifier resolves, in order, to:
//   - the identifier itself when it is a directory
//   - Root/<id>
//   - Root/models--<org>--<name>/snapshots/<revision> (Hugging Face cache)
type Dir = loader.Dir

// WeightMapper maps checkpoint weight names to encoder parameter names.
type WeightMapper = loader.WeightMapper

// RobertaMapper normalizes RoBERTa/BERT checkpoint names. It is the default
// mapper of Dir.
type RobertaMapper = loader.RobertaMapper
