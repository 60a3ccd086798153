package loader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/born-ml/lora/internal/serialization"
	"github.com/born-ml/lora/internal/tensor"
)

// Format represents the model weight format.
type Format int

// Supported model formats.
const (
	FormatUnknown Format = iota
	FormatSafeTensors
	FormatTorch
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatSafeTensors:
		return "SafeTensors"
	case FormatTorch:
		return "PyTorch"
	default:
		return "Unknown"
	}
}

// safetensorsIndex is model.safetensors.index.json / pytorch_model.bin.index.json.
type safetensorsIndex struct {
	WeightMap map[string]string `json:"weight_map"`
}

// weightPatterns are tried in order; the first pattern with matches wins.
var weightPatterns = []struct {
	pattern string
	format  Format
}{
	{"model.safetensors", FormatSafeTensors},
	{"model-*-of-*.safetensors", FormatSafeTensors},
	{"pytorch_model.bin", FormatTorch},
	{"pytorch_model-*-of-*.bin", FormatTorch},
}

func readWeights(dir string, mapper WeightMapper) (Format, map[string]*tensor.Tensor, error) {
	for _, wp := range weightPatterns {
		files, err := weightFiles(dir, wp.pattern)
		if err != nil {
			return FormatUnknown, nil, err
		}
		if len(files) == 0 {
			continue
		}

		tensors := make(map[string]*tensor.Tensor)
		for _, f := range files {
			var raw map[string]*tensor.Tensor
			switch wp.format {
			case FormatSafeTensors:
				raw, err = readSafeTensors(f)
			case FormatTorch:
				raw, err = readTorch(f)
			}
			if err != nil {
				return FormatUnknown, nil, err
			}

			for name, t := range raw {
				mapped, ok := mapper.MapName(name)
				if !ok {
					slog.Debug("skipping checkpoint tensor", "name", name)
					continue
				}
				if _, dup := tensors[mapped]; dup {
					return FormatUnknown, nil, fmt.Errorf("duplicate tensor name '%s' was found for this model", mapped)
				}
				tensors[mapped] = t
			}
		}
		return wp.format, tensors, nil
	}

	return FormatUnknown, nil, fmt.Errorf("%w in %s", ErrNoWeights, dir)
}

// weightFiles expands a pattern, preferring the shard list of an index file
// when one exists next to sharded weights.
func weightFiles(dir, pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	if len(matches) <= 1 {
		return matches, nil
	}

	for _, index := range []string{"model.safetensors.index.json", "pytorch_model.bin.index.json"} {
		b, err := os.ReadFile(filepath.Join(dir, index))
		if err != nil {
			continue
		}
		var idx safetensorsIndex
		if err := json.Unmarshal(b, &idx); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", index, err)
		}

		seen := make(map[string]bool)
		var files []string
		for _, shard := range idx.WeightMap {
			p := filepath.Join(dir, shard)
			if !seen[p] && filepath.Ext(p) == filepath.Ext(pattern) {
				seen[p] = true
				files = append(files, p)
			}
		}
		if len(files) > 0 {
			sort.Strings(files)
			return files, nil
		}
	}

	sort.Strings(matches)
	return matches, nil
}

func readSafeTensors(path string) (map[string]*tensor.Tensor, error) {
	r, err := serialization.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	tensors, skipped, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, name := range skipped {
		slog.Debug("skipping non-float tensor", "name", name, "file", filepath.Base(path))
	}
	return tensors, nil
}
