// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense float32 tensors used by the encoder and
// the LoRA adapters.
//
// # Overview
//
// Tensors are contiguous and row-major. This package provides:
//   - Creation: FromSlice, Zeros, Ones, Full, Randn
//   - NumPy-style broadcasting arithmetic (Add, Sub, Mul, Div)
//   - Batched MatMul and Linear backed by gonum BLAS
//   - Reshape (zero-copy), Permute, Transpose, Concat, Narrow
//   - Softmax over the last dimension
//
// # Basic Usage
//
//	import (
//	    "math/rand/v2"
//
//	    "github.com/born-ml/lora/tensor"
//	)
//
//	func main() {
//	    rng := rand.New(rand.NewPCG(1, 2))
//
//	    x := tensor.Randn(tensor.Shape{2, 5, 16}, rng)
//	    w := tensor.Randn(tensor.Shape{16, 16}, rng)
//
//	    y := tensor.Linear(x, w, nil)   // [2, 5, 16]
//	    p := y.Softmax()                // probabilities over the last dimension
//	    _ = p
//	}
//
// Shape errors are programmer errors and panic with a descriptive message.
package tensor
