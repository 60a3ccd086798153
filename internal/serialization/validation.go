package serialization

import (
	"fmt"
	"sort"
)

// validate checks the header against the size of the data section: every
// tensor must fit, match its shape, and not overlap its neighbours.
func validate(h Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}

	type span struct {
		name       string
		start, end int64
	}
	spans := make([]span, 0, len(h.Tensors))

	for name, info := range h.Tensors {
		if len(name) > MaxTensorNameLen {
			return &ValidationError{Err: ErrTensorNameTooLong, Details: fmt.Sprintf("%d bytes", len(name))}
		}

		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start || end > dataSize {
			return &ValidationError{
				Err:     ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("range [%d, %d) with data size %d", start, end, dataSize),
			}
		}

		if size := info.DType.Size(); size > 0 {
			if want := int64(info.NumElements() * size); want != end-start {
				return &ValidationError{
					Err:     ErrSizeMismatch,
					Tensor:  name,
					Details: fmt.Sprintf("%s %v needs %d bytes, header says %d", info.DType, info.Shape, want, end-start),
				}
			}
		}
		spans = append(spans, span{name, start, end})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i-1].end > spans[i].start {
			return &ValidationError{
				Err:     ErrOffsetOverlap,
				Tensor:  spans[i-1].name,
				Tensor2: spans[i].name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
					spans[i-1].start, spans[i-1].end, spans[i].start, spans[i].end),
			}
		}
	}
	return nil
}
