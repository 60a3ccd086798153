package lora

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/born-ml/lora/internal/loader"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/roberta"
	"github.com/born-ml/lora/internal/tensor"
)

// ErrInvalidRank is returned for a non-positive adapter rank.
var ErrInvalidRank = errors.New("lora: rank must be positive")

// Options configures a Wrapper.
type Options struct {
	ModelID         string // Pretrained model identifier resolved by the repository
	Rank            int    // Adapter rank r
	TrainBiases     bool   // Keep bias parameters trainable
	TrainEmbeddings bool   // Keep embedding parameters trainable
	TrainLayerNorms bool   // Keep layer-norm parameters trainable
	NumLabels       int    // Attach a classification head with this many labels (0: none)
	Seed            uint64 // Seed for adapter and head initialization
}

// DefaultOptions returns the defaults: roberta-base, rank 8, biases and
// layer norms trainable, embeddings frozen, no head.
func DefaultOptions() Options {
	return Options{
		ModelID:         "roberta-base",
		Rank:            8,
		TrainBiases:     true,
		TrainEmbeddings: false,
		TrainLayerNorms: true,
	}
}

// Policy returns the freezing policy selected by the options.
func (o Options) Policy() Policy {
	return Policy{
		TrainBiases:     o.TrainBiases,
		TrainEmbeddings: o.TrainEmbeddings,
		TrainLayerNorms: o.TrainLayerNorms,
	}
}

// Wrapper is a pretrained encoder with LoRA adapters in every self-attention
// module and a freezing policy applied.
//
// The wrapper is the root of the module tree: its children are the model's
// top-level modules plus, when configured, the fine-tune head, so parameter
// names match the pretrained checkpoint (embeddings.*, encoder.*, pooler.*)
// with finetune_head_classifier.* added.
//
// Example:
//
//	opts := lora.DefaultOptions()
//	opts.NumLabels = 2
//	w, err := lora.New(loader.Dir{Root: "/models"}, opts)
//	if err != nil {
//	    return err
//	}
//	trainable, total := w.ParameterCount()
type Wrapper struct {
	Model *roberta.Model
	Head  *ClassificationHead // nil unless Options.NumLabels > 0

	opts     Options
	replaced int
}

// New loads opts.ModelID from repo, replaces its self-attention modules and
// applies the freezing policy.
//
// Loading errors are returned wrapped (errors.Is(err, loader.ErrNotFound)
// holds for unknown identifiers); a parameter name mismatch during
// replacement returns an *IntegrityError.
func New(repo loader.Repository, opts Options) (*Wrapper, error) {
	if opts.Rank <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidRank, opts.Rank)
	}
	if opts.NumLabels < 0 {
		return nil, fmt.Errorf("lora: negative number of labels %d", opts.NumLabels)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	model, err := roberta.FromPretrained(repo, opts.ModelID, rng)
	if err != nil {
		return nil, err
	}

	w := &Wrapper{Model: model, opts: opts}
	if opts.NumLabels > 0 {
		w.Head = NewClassificationHead(model.Config, opts.NumLabels, rng)
	}

	w.replaced, err = ReplaceAttention(w, model.Config, opts.Rank, rng)
	if err != nil {
		return nil, err
	}

	trainable := Freeze(w, opts.Policy())
	slog.Debug("applied freezing policy", "model", opts.ModelID, "trainable", trainable)
	return w, nil
}

// Options returns the options the wrapper was built with.
func (w *Wrapper) Options() Options {
	return w.opts
}

// Config returns the encoder configuration.
func (w *Wrapper) Config() roberta.Config {
	return w.Model.Config
}

// Replaced returns the number of self-attention modules that were adapted.
func (w *Wrapper) Replaced() int {
	return w.replaced
}

// Freeze re-applies a freezing policy and returns the number of trainable
// parameters.
func (w *Wrapper) Freeze(p Policy) int {
	w.opts.TrainBiases = p.TrainBiases
	w.opts.TrainEmbeddings = p.TrainEmbeddings
	w.opts.TrainLayerNorms = p.TrainLayerNorms
	return Freeze(w, p)
}

// SetTraining switches dropout on (training) or off (evaluation).
func (w *Wrapper) SetTraining(training bool) {
	for _, c := range w.Children() {
		nn.SetTraining(c.Module, training)
	}
}

// Forward runs the adapted encoder.
func (w *Wrapper) Forward(in roberta.Input) roberta.Output {
	return w.Model.Forward(in)
}

// Classify runs the encoder and the classification head, returning logits
// [batch, labels].
func (w *Wrapper) Classify(in roberta.Input) (*tensor.Tensor, error) {
	if w.Head == nil {
		return nil, errors.New("lora: wrapper has no classification head (NumLabels is 0)")
	}
	return w.Head.Forward(w.Model.Forward(in).LastHidden), nil
}

// NamedParameters returns every parameter with its dotted name.
func (w *Wrapper) NamedParameters() []nn.NamedParameter {
	return nn.NamedParameters(w)
}

// TrainableParameters returns the parameters left trainable by the policy.
func (w *Wrapper) TrainableParameters() []nn.NamedParameter {
	var out []nn.NamedParameter
	for _, p := range nn.NamedParameters(w) {
		if p.RequiresGrad() {
			out = append(out, p)
		}
	}
	return out
}

// ParameterCount returns the number of trainable and total scalars.
func (w *Wrapper) ParameterCount() (trainable, total int) {
	for _, p := range nn.NamedParameters(w) {
		n := p.NumElements()
		total += n
		if p.RequiresGrad() {
			trainable += n
		}
	}
	return trainable, total
}

// Parameters returns nil: all parameters live in children.
func (w *Wrapper) Parameters() []*nn.Parameter {
	return nil
}

// Children returns the model's top-level modules and the head.
func (w *Wrapper) Children() []nn.Child {
	children := w.Model.Children()
	if w.Head != nil {
		children = append(children, nn.Child{Name: ClassifierName, Module: w.Head})
	}
	return children
}
