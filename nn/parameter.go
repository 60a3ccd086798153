// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/tensor"
)

// Parameter represents a named tensor of a module.
//
// Example:
//
//	bias := nn.NewParameter("bias", tensor.Zeros(tensor.Shape{768}), nn.RoleBias)
//	bias.SetRequiresGrad(false)
//
// Methods:
//
//	Name() string
//	    Returns the local parameter name (e.g., "weight", "bias").
//
//	Tensor() *tensor.Tensor
//	    Returns the parameter tensor.
//
//	Roles() Role
//	    Returns the role set used by freezing policies.
//
//	RequiresGrad() bool / SetRequiresGrad(bool)
//	    Reads or sets the trainability flag.
type Parameter = nn.Parameter

// NewParameter creates a new trainable parameter with the given roles.
func NewParameter(name string, t *tensor.Tensor, roles ...Role) *Parameter {
	return nn.NewParameter(name, t, roles...)
}

// NamedParameter pairs a parameter with its full dotted name.
type NamedParameter = nn.NamedParameter

// Role classifies a parameter for trainability decisions.
type Role = nn.Role

// Parameter roles.
const (
	RoleOther     Role = nn.RoleOther
	RoleAdapter   Role = nn.RoleAdapter
	RoleHead      Role = nn.RoleHead
	RoleBias      Role = nn.RoleBias
	RoleEmbedding Role = nn.RoleEmbedding
	RoleLayerNorm Role = nn.RoleLayerNorm
)
