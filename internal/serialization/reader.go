package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/lora/internal/tensor"
)

// Reader reads tensors from a SafeTensors source.
type Reader struct {
	src        io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64 // Offset where tensor data starts
}

// Open opens a SafeTensors file.
func Open(path string) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r, err := NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader parses the header of a SafeTensors source of the given size.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	var sizeBuf [8]byte
	if _, err := src.ReadAt(sizeBuf[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(sizeBuf[:])
	if headerSize > MaxHeaderSize || int64(headerSize) > size-8 { //nolint:gosec // G115: bounded by MaxHeaderSize
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataOffset := int64(8 + headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if err := validate(header, size-dataOffset); err != nil {
		return nil, err
	}

	return &Reader{
		src:        src,
		header:     header,
		dataOffset: dataOffset,
	}, nil
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Metadata returns the "__metadata__" map from the header.
func (r *Reader) Metadata() map[string]string {
	return r.header.Metadata
}

// Names returns the sorted tensor names in the file.
func (r *Reader) Names() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the header entry of a tensor.
func (r *Reader) Info(name string) (TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return info, nil
}

// Tensor reads a tensor and widens it to float32.
func (r *Reader) Tensor(name string) (*tensor.Tensor, error) {
	info, err := r.Info(name)
	if err != nil {
		return nil, err
	}
	if !info.DType.IsFloat() {
		return nil, fmt.Errorf("%w: tensor %s has dtype %s", ErrUnsupportedDType, name, info.DType)
	}

	raw := make([]byte, info.DataOffsets[1]-info.DataOffsets[0])
	if _, err := r.src.ReadAt(raw, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}

	data, err := decode(raw, info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}

	shape := tensor.Shape(info.Shape)
	if len(shape) == 0 {
		shape = tensor.Shape{1}
	}
	return tensor.FromSlice(data, shape)
}

// ReadAll reads every floating point tensor. Non-float tensors (e.g. integer
// position id buffers) are returned in skipped.
func (r *Reader) ReadAll() (tensors map[string]*tensor.Tensor, skipped []string, err error) {
	tensors = make(map[string]*tensor.Tensor, len(r.header.Tensors))
	for _, name := range r.Names() {
		if !r.header.Tensors[name].DType.IsFloat() {
			skipped = append(skipped, name)
			continue
		}
		t, err := r.Tensor(name)
		if err != nil {
			return nil, nil, err
		}
		tensors[name] = t
	}
	return tensors, skipped, nil
}

// ReadFile reads every floating point tensor and the metadata of a file.
func ReadFile(path string) (map[string]*tensor.Tensor, map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = r.Close()
	}()

	tensors, _, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	return tensors, r.Metadata(), nil
}

func decode(raw []byte, dtype DType) ([]float32, error) {
	switch dtype {
	case F32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case F16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	case BF16:
		return bfloat16.DecodeFloat32(raw), nil
	case F64:
		out := make([]float32, len(raw)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}
