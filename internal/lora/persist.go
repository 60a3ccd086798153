package lora

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/born-ml/lora/internal/loader"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/serialization"
	"github.com/born-ml/lora/internal/tensor"
)

// Metadata keys of a saved state, stored in the safetensors __metadata__
// header rather than among the tensors.
const (
	MetaModelID = "model_id"
	MetaRank    = "lora_rank"
)

// ErrNoCheckpoint is returned by Load when neither a path nor a state is
// given.
var ErrNoCheckpoint = errors.New("lora: no file path or state provided")

// State is a saved wrapper: parameter tensors by dotted name plus the model
// identifier and rank needed to rebuild a compatible wrapper.
type State struct {
	ModelID string
	Rank    int
	Tensors map[string]*tensor.Tensor
}

// SaveOptions configures State and Save.
type SaveOptions struct {
	// TrainableOnly keeps only parameters left trainable by the policy.
	TrainableOnly bool

	// DType is the on-disk element type (serialization.F32 by default).
	// F16 halves the file size but does not round-trip exactly.
	DType serialization.DType
}

// State snapshots the wrapper's parameters. Tensors are copies.
func (w *Wrapper) State(opts SaveOptions) *State {
	s := &State{
		ModelID: w.opts.ModelID,
		Rank:    w.opts.Rank,
		Tensors: make(map[string]*tensor.Tensor),
	}
	for _, p := range nn.NamedParameters(w) {
		if opts.TrainableOnly && !p.RequiresGrad() {
			continue
		}
		s.Tensors[p.Name] = p.Tensor().Clone()
	}
	return s
}

// Save writes the wrapper's state to a safetensors file at path.
func (w *Wrapper) Save(path string, opts SaveOptions) error {
	return w.State(opts).Save(path, opts.DType)
}

// Save writes s to a safetensors file at path with model_id and lora_rank
// in the header metadata.
func (s *State) Save(path string, dtype serialization.DType) error {
	metadata := map[string]string{
		MetaModelID: s.ModelID,
		MetaRank:    strconv.Itoa(s.Rank),
	}
	if err := serialization.WriteFile(path, s.Tensors, metadata, serialization.WriteOptions{DType: dtype}); err != nil {
		return fmt.Errorf("lora: saving state: %w", err)
	}
	return nil
}

// ReadState reads a state written by Save.
func ReadState(path string) (*State, error) {
	tensors, metadata, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lora: reading state: %w", err)
	}

	id, ok := metadata[MetaModelID]
	if !ok {
		return nil, fmt.Errorf("lora: %s has no %s metadata", path, MetaModelID)
	}
	rawRank, ok := metadata[MetaRank]
	if !ok {
		return nil, fmt.Errorf("lora: %s has no %s metadata", path, MetaRank)
	}
	rank, err := strconv.Atoi(rawRank)
	if err != nil {
		return nil, fmt.Errorf("lora: invalid %s %q in %s: %w", MetaRank, rawRank, path, err)
	}

	return &State{ModelID: id, Rank: rank, Tensors: tensors}, nil
}

// Checkpoint names the state to Load: a file written by Save, or a State
// held in memory. Path wins when both are set.
type Checkpoint struct {
	Path  string
	State *State
}

// Load rebuilds a wrapper from a checkpoint: the stored model identifier is
// resolved through repo with the stored rank (other options at their
// defaults, a classification head sized from the saved head if present) and
// the saved tensors are copied in. Names missing from or unknown to the
// checkpoint are tolerated; a shape mismatch is an error.
func Load(repo loader.Repository, ckpt Checkpoint) (*Wrapper, error) {
	state := ckpt.State
	switch {
	case ckpt.Path != "":
		var err error
		if state, err = ReadState(ckpt.Path); err != nil {
			return nil, err
		}
	case state == nil:
		return nil, ErrNoCheckpoint
	}

	opts := DefaultOptions()
	opts.ModelID = state.ModelID
	opts.Rank = state.Rank
	if bias, ok := state.Tensors[ClassifierName+".out_proj.bias"]; ok {
		opts.NumLabels = bias.NumElements()
	}

	w, err := New(repo, opts)
	if err != nil {
		return nil, err
	}

	res, err := nn.LoadStateDict(w, state.Tensors, false)
	if err != nil {
		return nil, fmt.Errorf("lora: loading state: %w", err)
	}
	slog.Debug("loaded LoRA state", "model", state.ModelID, "rank", state.Rank,
		"tensors", len(state.Tensors), "missing", len(res.Missing), "unexpected", len(res.Unexpected))
	return w, nil
}
