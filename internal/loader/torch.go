package loader

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/born-ml/lora/internal/tensor"
)

type torchEntry struct {
	key   any
	value any
}

// readTorch reads a pickled PyTorch state dict (pytorch_model.bin).
func readTorch(path string) (map[string]*tensor.Tensor, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error unpickling %s: %w", path, err)
	}

	entries, err := torchEntries(obj)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	tensors := make(map[string]*tensor.Tensor, len(entries))
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}
		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			slog.Debug("skipping non-tensor entry", "name", name, "file", filepath.Base(path))
			continue
		}

		t, err := torchTensor(pt)
		if err != nil {
			slog.Debug("skipping tensor", "name", name, "error", err)
			continue
		}
		tensors[name] = t
	}
	return tensors, nil
}

func torchEntries(obj any) ([]torchEntry, error) {
	switch d := obj.(type) {
	case *types.OrderedDict:
		var out []torchEntry
		for el := d.List.Front(); el != nil; el = el.Next() {
			entry := el.Value.(*types.OrderedDictEntry)
			out = append(out, torchEntry{key: entry.Key, value: entry.Value})
		}
		return out, nil
	case *types.Dict:
		var out []torchEntry
		for _, k := range d.Keys() {
			out = append(out, torchEntry{key: k, value: d.MustGet(k)})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected state dict type %T", obj)
	}
}

// torchTensor copies a (possibly strided) view of a float storage into a
// contiguous tensor.
func torchTensor(pt *pytorch.Tensor) (*tensor.Tensor, error) {
	var src []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		src = s.Data
	case *pytorch.HalfStorage:
		src = s.Data
	case *pytorch.BFloat16Storage:
		src = s.Data
	case *pytorch.DoubleStorage:
		src = make([]float32, len(s.Data))
		for i, v := range s.Data {
			src[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported storage type %T", s)
	}

	shape := tensor.Shape(pt.Size)
	if len(shape) == 0 {
		shape = tensor.Shape{1}
	}

	out := make([]float32, shape.NumElements())
	strides := pt.Stride
	if len(strides) != len(pt.Size) {
		strides = tensor.Shape(pt.Size).ComputeStrides()
	}

	idx := make([]int, len(pt.Size))
	off := pt.StorageOffset
	for i := range out {
		if off < 0 || off >= len(src) {
			return nil, fmt.Errorf("storage offset %d out of range %d", off, len(src))
		}
		out[i] = src[off]
		for d := len(pt.Size) - 1; d >= 0; d-- {
			idx[d]++
			off += strides[d]
			if idx[d] < pt.Size[d] {
				break
			}
			off -= strides[d] * pt.Size[d]
			idx[d] = 0
		}
	}

	return tensor.FromSlice(out, shape)
}
