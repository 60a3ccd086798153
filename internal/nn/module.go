// Package nn implements the module tree and the neural network layers the
// encoder is built from.
//
// This package provides:
//   - Module: a node with direct parameters and named children
//   - Container: a module whose children can be replaced in place
//   - Parameter: a named tensor with roles and a trainability flag
//   - NamedParameters / StateDict / LoadStateDict: dotted-name views of a tree
//   - Layers: Linear, Embedding, LayerNorm, Dropout, activations
//
// Design inspired by PyTorch's nn.Module: parameter names are the dotted
// path of child names from the root, so a tree built here produces the same
// names as the Hugging Face checkpoint it mirrors.
package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/lora/internal/tensor"
)

// Module is a node of a model's module tree.
//
// Forward signatures differ between layers, so they are not part of the
// interface; the tree only needs parameters and children.
type Module interface {
	// Parameters returns the parameters owned directly by this module,
	// excluding those of its children.
	Parameters() []*Parameter

	// Children returns the named child modules in a stable order.
	Children() []Child
}

// Child is a named edge of the module tree.
type Child struct {
	Name   string
	Module Module
}

// Container is a module whose children can be swapped.
//
// SetChild returns an error when name is not a child or when m does not
// satisfy the type the slot requires.
type Container interface {
	Module
	SetChild(name string, m Module) error
}

// Trainer is implemented by modules whose behavior depends on training mode
// (e.g. Dropout).
type Trainer interface {
	SetTraining(training bool)
}

// NamedParameter pairs a parameter with its full dotted name.
type NamedParameter struct {
	Name string
	*Parameter
}

// Join builds a dotted name.
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Walk visits every module depth-first, parents before children. The root
// has the empty path. When fn returns false the module's children are
// skipped.
func Walk(root Module, fn func(path string, m Module) bool) {
	walk("", root, fn)
}

func walk(path string, m Module, fn func(string, Module) bool) {
	if !fn(path, m) {
		return
	}
	for _, c := range m.Children() {
		walk(Join(path, c.Name), c.Module, fn)
	}
}

// NamedParameters returns every parameter in the tree with its dotted name,
// in depth-first order.
func NamedParameters(root Module) []NamedParameter {
	var out []NamedParameter
	Walk(root, func(path string, m Module) bool {
		for _, p := range m.Parameters() {
			out = append(out, NamedParameter{Name: Join(path, p.Name()), Parameter: p})
		}
		return true
	})
	return out
}

// ParameterNames returns the sorted dotted names of every parameter.
func ParameterNames(root Module) []string {
	params := NamedParameters(root)
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// StateDict returns a map of dotted parameter names to parameter tensors.
// The tensors are shared with the module, not copied.
func StateDict(root Module) map[string]*tensor.Tensor {
	sd := make(map[string]*tensor.Tensor)
	for _, p := range NamedParameters(root) {
		sd[p.Name] = p.Tensor()
	}
	return sd
}

// LoadResult lists the names that did not line up during LoadStateDict.
type LoadResult struct {
	Missing    []string // Parameters of the module absent from the state dict
	Unexpected []string // State dict entries with no matching parameter
}

// LoadStateDict copies values from stateDict into the tree's parameters.
//
// Matching names are copied; a shape mismatch on a matching name is always
// an error. When strict is false, missing and unexpected names are reported
// in the result but tolerated.
func LoadStateDict(root Module, stateDict map[string]*tensor.Tensor, strict bool) (LoadResult, error) {
	var res LoadResult
	seen := make(map[string]bool, len(stateDict))

	for _, p := range NamedParameters(root) {
		src, ok := stateDict[p.Name]
		if !ok {
			res.Missing = append(res.Missing, p.Name)
			continue
		}
		seen[p.Name] = true
		if err := p.Tensor().CopyFrom(src); err != nil {
			return res, fmt.Errorf("loading %s: %w", p.Name, err)
		}
	}

	for name := range stateDict {
		if !seen[name] {
			res.Unexpected = append(res.Unexpected, name)
		}
	}
	sort.Strings(res.Missing)
	sort.Strings(res.Unexpected)

	if strict && (len(res.Missing) > 0 || len(res.Unexpected) > 0) {
		return res, fmt.Errorf("state dict mismatch: missing [%s], unexpected [%s]",
			strings.Join(res.Missing, ", "), strings.Join(res.Unexpected, ", "))
	}
	return res, nil
}

// TagAll adds roles to every parameter in the subtree rooted at m.
func TagAll(m Module, r Role) {
	for _, p := range NamedParameters(m) {
		p.Tag(r)
	}
}

// SetTraining switches every Trainer in the tree to training or evaluation
// mode.
func SetTraining(root Module, training bool) {
	Walk(root, func(_ string, m Module) bool {
		if t, ok := m.(Trainer); ok {
			t.SetTraining(training)
		}
		return true
	})
}
