// Package serialization reads and writes SafeTensors files.
//
// SafeTensors is the standard weight format for Hugging Face models:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header, space padded to 8 bytes]
//	[tensor data: raw little-endian bytes]
//
// The JSON header maps tensor names to {dtype, shape, data_offsets} and may
// hold a "__metadata__" object of string key/value pairs. Metadata lives in
// its own namespace, so it can never collide with a tensor name.
//
// Tensors are exposed as float32; F16 and BF16 payloads are widened on read
// and F16 can be produced on write.
//
// Example usage:
//
//	err := serialization.WriteFile("adapter.safetensors", stateDict,
//	    map[string]string{"model_id": "roberta-base"}, serialization.WriteOptions{})
//
//	r, err := serialization.Open("adapter.safetensors")
//	defer r.Close()
//	tensors, err := r.ReadAll()
package serialization
