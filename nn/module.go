// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/tensor"
)

// Module is a node of a model's module tree.
//
// Every module implements:
//   - Parameters: the parameters owned directly by the module
//   - Children: the named child modules, in a stable order
//
// Full parameter names are the dotted path of child names from the root,
// e.g. "encoder.layer.0.attention.self.query.weight".
type Module = nn.Module

// Child is a named edge of the module tree.
type Child = nn.Child

// Container is a module whose children can be replaced in place.
type Container = nn.Container

// LoadResult lists the names that did not line up during LoadStateDict.
type LoadResult = nn.LoadResult

// Walk visits every module depth-first, parents before children. When fn
// returns false the module's children are skipped.
func Walk(root Module, fn func(path string, m Module) bool) {
	nn.Walk(root, fn)
}

// NamedParameters returns every parameter in the tree with its dotted name.
func NamedParameters(root Module) []NamedParameter {
	return nn.NamedParameters(root)
}

// ParameterNames returns the sorted dotted names of every parameter.
func ParameterNames(root Module) []string {
	return nn.ParameterNames(root)
}

// StateDict returns dotted parameter names mapped to the (shared) parameter
// tensors.
func StateDict(root Module) map[string]*tensor.Tensor {
	return nn.StateDict(root)
}

// LoadStateDict copies matching tensors into the tree. With strict set,
// missing or unexpected names are an error; a shape mismatch always is.
func LoadStateDict(root Module, stateDict map[string]*tensor.Tensor, strict bool) (LoadResult, error) {
	return nn.LoadStateDict(root, stateDict, strict)
}

// SetTraining switches every dropout in the tree to training or evaluation
// mode.
func SetTraining(root Module, training bool) {
	nn.SetTraining(root, training)
}
