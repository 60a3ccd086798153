package lora

import "github.com/born-ml/lora/internal/nn"

// Policy decides which parameters stay trainable. Adapter and fine-tune
// head parameters are always trainable; the flags add biases, embeddings
// and layer norms.
type Policy struct {
	TrainBiases     bool
	TrainEmbeddings bool
	TrainLayerNorms bool
}

// Trainable reports whether a parameter with roles r is trainable.
func (p Policy) Trainable(r nn.Role) bool {
	switch {
	case r.Any(nn.RoleAdapter | nn.RoleHead):
		return true
	case p.TrainBiases && r.Has(nn.RoleBias):
		return true
	case p.TrainEmbeddings && r.Has(nn.RoleEmbedding):
		return true
	case p.TrainLayerNorms && r.Has(nn.RoleLayerNorm):
		return true
	default:
		return false
	}
}

// Freeze marks every parameter under root trainable or frozen according to
// p and returns the number of trainable parameters. Running it again with
// the same policy changes nothing.
func Freeze(root nn.Module, p Policy) int {
	trainable := 0
	for _, param := range nn.NamedParameters(root) {
		ok := p.Trainable(param.Roles())
		param.SetRequiresGrad(ok)
		if ok {
			trainable++
		}
	}
	return trainable
}
