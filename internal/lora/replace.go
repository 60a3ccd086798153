package lora

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/roberta"
)

// IntegrityError reports that an adapted module's parameter names, adapter
// parameters excluded, differ from those of the module it replaces. It means
// the base architecture no longer matches the adaptation.
type IntegrityError struct {
	Path     string   // Dotted path of the replaced module
	Expected []string // Parameter names of the original module
	Actual   []string // Parameter names of the replacement, without adapters
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("lora: parameter names of %s don't match (ignoring lora parameters):\n\texpected: [%s]\n\tnew (w/o lora): [%s]",
		e.Path, strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "))
}

// replacement is a self-attention module found in the first pass.
type replacement struct {
	parent nn.Container
	name   string
	path   string
	old    *roberta.SelfAttention
}

// ReplaceAttention swaps every roberta.SelfAttention reachable from root for
// a SelfAttention with adapters of the given rank, built from cfg.
//
// Targets are collected in a first pass and swapped in a second. Each
// replacement receives the original's parameters (non-strict, since the
// adapters have no source) and must expose the same parameter names apart
// from the adapters; otherwise an *IntegrityError is returned and the tree
// is left with the replacements made so far.
//
// Returns the number of replaced modules. Already adapted modules are not
// matched, so a second call returns 0.
func ReplaceAttention(root nn.Module, cfg roberta.Config, rank int, rng *rand.Rand) (int, error) {
	targets, err := collectTargets(root)
	if err != nil {
		return 0, err
	}

	for i, t := range targets {
		adapted, err := adapt(t, cfg, rank, rng)
		if err != nil {
			return i, err
		}
		if err := t.parent.SetChild(t.name, adapted); err != nil {
			return i, fmt.Errorf("lora: replacing %s: %w", t.path, err)
		}
	}

	slog.Info("replaced self-attention modules with LoRA self-attention", "count", len(targets), "rank", rank)
	return len(targets), nil
}

func collectTargets(root nn.Module) ([]replacement, error) {
	var (
		targets []replacement
		walkErr error
	)
	nn.Walk(root, func(path string, m nn.Module) bool {
		if walkErr != nil {
			return false
		}
		if _, ok := m.(*roberta.SelfAttention); ok {
			return false
		}
		for _, c := range m.Children() {
			old, ok := c.Module.(*roberta.SelfAttention)
			if !ok {
				continue
			}
			parent, ok := m.(nn.Container)
			if !ok {
				walkErr = fmt.Errorf("lora: %s holds a self-attention module but %T does not support replacement",
					nn.Join(path, c.Name), m)
				return false
			}
			targets = append(targets, replacement{
				parent: parent,
				name:   c.Name,
				path:   nn.Join(path, c.Name),
				old:    old,
			})
		}
		return true
	})
	return targets, walkErr
}

// adapt builds the replacement for t, migrates its state and verifies the
// parameter names.
func adapt(t replacement, cfg roberta.Config, rank int, rng *rand.Rand) (*SelfAttention, error) {
	adapted := NewSelfAttention(cfg, rank, rng)

	oldState := nn.StateDict(t.old)
	if _, err := nn.LoadStateDict(adapted, oldState, false); err != nil {
		return nil, fmt.Errorf("lora: migrating %s: %w", t.path, err)
	}

	expected := nn.ParameterNames(t.old)
	var actual []string
	for _, name := range nn.ParameterNames(adapted) {
		if !strings.HasPrefix(name, AdapterPrefix) {
			actual = append(actual, name)
		}
	}
	if !slices.Equal(expected, actual) {
		return nil, &IntegrityError{Path: t.path, Expected: expected, Actual: actual}
	}

	if t.old.Dropout.Training() {
		nn.SetTraining(adapted, true)
	}
	return adapted, nil
}
