// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn exposes the module tree the encoder and the adapters are built
// from.
//
// # Overview
//
// This package contains:
//   - Module: a node with direct parameters and named children
//   - Parameter: a named tensor with role tags and a trainability flag
//   - Roles: Adapter, Head, Bias, Embedding, LayerNorm
//   - Tree utilities: Walk, NamedParameters, StateDict, LoadStateDict
//
// # Basic Usage
//
//	w, err := lora.New(loader.Dir{Root: "/models"}, lora.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, p := range nn.NamedParameters(w) {
//	    fmt.Println(p.Name, p.Roles(), p.RequiresGrad())
//	}
//
// # Roles
//
// Roles are decided when a parameter is created: linear biases carry
// RoleBias, layer-norm weights RoleLayerNorm, layer-norm biases both, the
// embedding block tags its whole subtree RoleEmbedding, adapters carry
// RoleAdapter and fine-tune heads RoleHead. Freezing policies read roles, not
// names.
package nn
