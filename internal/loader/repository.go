package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/born-ml/lora/internal/tensor"
)

// Errors returned by Repository implementations.
var (
	ErrNotFound  = errors.New("model not found")
	ErrNoWeights = errors.New("no supported weight file")
)

// ConfigFile is the name of the model configuration file.
const ConfigFile = "config.json"

// Pretrained holds the weights and raw configuration of a resolved model.
type Pretrained struct {
	ID      string                    // Identifier the model was requested with
	Dir     string                    // Directory the files were read from
	Format  Format                    // Weight file format that was read
	Config  json.RawMessage           // Contents of config.json
	Tensors map[string]*tensor.Tensor // Normalized name → weights
}

// DecodeConfig unmarshals config.json into v.
func (p *Pretrained) DecodeConfig(v any) error {
	if err := json.Unmarshal(p.Config, v); err != nil {
		return fmt.Errorf("decoding %s of %s: %w", ConfigFile, p.ID, err)
	}
	return nil
}

// Repository resolves model identifiers to pretrained weights.
type Repository interface {
	Load(id string) (*Pretrained, error)
}

// Dir is a Repository backed by a local directory tree.
type Dir struct {
	// Root is searched for <id> and the Hugging Face cache layout.
	// Empty means the current directory.
	Root string

	// Mapper normalizes weight names. Defaults to RobertaMapper.
	Mapper WeightMapper
}

// Load implements Repository.
func (d Dir) Load(id string) (*Pretrained, error) {
	dir, err := d.Resolve(id)
	if err != nil {
		return nil, err
	}

	config, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrNotFound, id, ConfigFile)
		}
		return nil, fmt.Errorf("reading %s of %s: %w", ConfigFile, id, err)
	}

	mapper := d.Mapper
	if mapper == nil {
		mapper = RobertaMapper{}
	}

	format, tensors, err := readWeights(dir, mapper)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", id, err)
	}

	slog.Debug("loaded pretrained weights", "id", id, "dir", dir, "format", format, "tensors", len(tensors))
	return &Pretrained{
		ID:      id,
		Dir:     dir,
		Format:  format,
		Config:  config,
		Tensors: tensors,
	}, nil
}

// Resolve returns the directory holding the model files for id.
func (d Dir) Resolve(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty model identifier", ErrNotFound)
	}

	if isDir(id) {
		return id, nil
	}

	root := d.Root
	if root == "" {
		root = "."
	}

	if p := filepath.Join(root, filepath.FromSlash(id)); isDir(p) {
		return p, nil
	}

	if p, ok := hubSnapshot(root, id); ok {
		return p, nil
	}

	return "", fmt.Errorf("%w: %s (searched %s)", ErrNotFound, id, root)
}

// hubSnapshot resolves id in the Hugging Face cache layout:
// models--<org>--<name>/snapshots/<revision>. The revision named by
// refs/main wins; otherwise the lexically last snapshot is used.
func hubSnapshot(root, id string) (string, bool) {
	repo := filepath.Join(root, "models--"+strings.ReplaceAll(id, "/", "--"))
	snapshots := filepath.Join(repo, "snapshots")

	if ref, err := os.ReadFile(filepath.Join(repo, "refs", "main")); err == nil {
		if p := filepath.Join(snapshots, strings.TrimSpace(string(ref))); isDir(p) {
			return p, true
		}
	}

	entries, err := os.ReadDir(snapshots)
	if err != nil {
		return "", false
	}
	var revs []string
	for _, e := range entries {
		if e.IsDir() {
			revs = append(revs, e.Name())
		}
	}
	if len(revs) == 0 {
		return "", false
	}
	sort.Strings(revs)
	return filepath.Join(snapshots, revs[len(revs)-1]), true
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
