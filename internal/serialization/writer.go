package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/x448/float16"

	"github.com/born-ml/lora/internal/tensor"
)

// WriteOptions configures how tensors are stored.
type WriteOptions struct {
	// DType is the on-disk element type: F32 (default) or F16.
	DType DType
}

// WriteFile writes tensors and metadata to a SafeTensors file at path.
func WriteFile(path string, tensors map[string]*tensor.Tensor, metadata map[string]string, opts WriteOptions) error {
	//nolint:gosec // G304: File path comes from user input, which is expected for model saving
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := Write(bw, tensors, metadata, opts); err != nil {
		_ = f.Close() // Best effort close on error
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// Write encodes tensors and metadata in SafeTensors format.
//
// Tensors are written in alphabetical order by name.
func Write(w io.Writer, tensors map[string]*tensor.Tensor, metadata map[string]string, opts WriteOptions) error {
	dtype := opts.DType
	if dtype == "" {
		dtype = F32
	}
	if dtype != F32 && dtype != F16 {
		return fmt.Errorf("%w for writing: %s", ErrUnsupportedDType, dtype)
	}
	if len(tensors) > MaxTensorCount {
		return fmt.Errorf("%w: %d", ErrTooManyTensors, len(tensors))
	}

	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == metadataKey {
			return fmt.Errorf("%w: %s", ErrReservedName, name)
		}
		if len(name) > MaxTensorNameLen {
			return fmt.Errorf("%w: %d bytes", ErrTensorNameTooLong, len(name))
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := Header{Metadata: metadata, Tensors: make(map[string]TensorInfo, len(names))}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		size := int64(t.NumElements() * dtype.Size())
		header.Tensors[name] = TensorInfo{
			DType:       dtype,
			Shape:       t.Shape().Clone(),
			DataOffsets: [2]int64{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, name := range names {
		if err := writeData(w, tensors[name].Data(), dtype); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

func writeData(w io.Writer, data []float32, dtype DType) error {
	switch dtype {
	case F16:
		u16s := make([]uint16, len(data))
		for i, v := range data {
			u16s[i] = float16.Fromfloat32(v).Bits()
		}
		return binary.Write(w, binary.LittleEndian, u16s)
	default:
		return binary.Write(w, binary.LittleEndian, data)
	}
}
