package nn

import (
	"strings"

	"github.com/born-ml/lora/internal/tensor"
)

// Role classifies a parameter for trainability decisions.
//
// Roles are a bit set decided when the parameter is created (and refined
// when it is attached under a tagged subtree), rather than re-derived from
// the parameter's name later. A layer-norm bias, for instance, carries both
// RoleLayerNorm and RoleBias.
type Role uint8

// Parameter roles.
const (
	RoleAdapter Role = 1 << iota
	RoleHead
	RoleBias
	RoleEmbedding
	RoleLayerNorm
)

// RoleOther is the empty role set: a plain weight.
const RoleOther Role = 0

var roleNames = []struct {
	role Role
	name string
}{
	{RoleAdapter, "adapter"},
	{RoleHead, "head"},
	{RoleBias, "bias"},
	{RoleEmbedding, "embedding"},
	{RoleLayerNorm, "layernorm"},
}

// Has reports whether every role in other is present in r.
func (r Role) Has(other Role) bool {
	return r&other == other
}

// Any reports whether r shares at least one role with other.
func (r Role) Any(other Role) bool {
	return r&other != 0
}

// String returns the roles joined by "|", or "other".
func (r Role) String() string {
	if r == RoleOther {
		return "other"
	}
	var parts []string
	for _, rn := range roleNames {
		if r.Has(rn.role) {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// Parameter represents a named tensor of a module.
//
// Parameters carry a role set used by freezing policies and a trainability
// flag consulted by whoever builds the optimizer.
//
// Example:
//
//	bias := nn.NewParameter("bias", tensor.Zeros(tensor.Shape{768}), nn.RoleBias)
//	bias.SetRequiresGrad(false)
type Parameter struct {
	name         string         // Local name (e.g., "weight", "bias")
	tensor       *tensor.Tensor // The parameter tensor
	roles        Role           // Classification for freezing policies
	requiresGrad bool           // Whether an optimizer should update it
}

// NewParameter creates a new trainable parameter.
//
// The name is local to the owning module; full dotted names are produced by
// NamedParameters.
func NewParameter(name string, t *tensor.Tensor, roles ...Role) *Parameter {
	p := &Parameter{
		name:         name,
		tensor:       t,
		requiresGrad: true,
	}
	for _, r := range roles {
		p.roles |= r
	}
	return p
}

// Name returns the parameter's local name.
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// Roles returns the parameter's role set.
func (p *Parameter) Roles() Role {
	return p.roles
}

// Tag adds roles to the parameter.
func (p *Parameter) Tag(r Role) {
	p.roles |= r
}

// RequiresGrad reports whether the parameter is trainable.
func (p *Parameter) RequiresGrad() bool {
	return p.requiresGrad
}

// SetRequiresGrad marks the parameter trainable or frozen.
func (p *Parameter) SetRequiresGrad(v bool) {
	p.requiresGrad = v
}

// NumElements returns the number of scalars held by the parameter.
func (p *Parameter) NumElements() int {
	return p.tensor.NumElements()
}
