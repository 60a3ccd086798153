// Package lora implements Low-Rank Adaptation for the roberta encoder.
//
// Every self-attention module of a pretrained model is replaced by a
// SelfAttention that adds trainable low-rank updates to its query and value
// projections:
//
//	query'(x) = query(x) + x @ (B_q·A_q).T
//	value'(x) = value(x) + x @ (B_v·A_v).T
//
// B starts at zero, so a freshly wrapped model computes exactly what the
// pretrained model does. After replacement a Policy freezes everything except
// the adapters, the fine-tune head and, optionally, biases, embeddings and
// layer norms. Trainability is decided from the role tags each parameter
// carries (see nn.Role).
//
// Example:
//
//	repo := loader.Dir{Root: "/models"}
//	w, err := lora.New(repo, lora.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	// ... train w.TrainableParameters() ...
//	if err := w.Save("adapter.safetensors", lora.SaveOptions{}); err != nil {
//	    return err
//	}
//	restored, err := lora.Load(repo, lora.Checkpoint{Path: "adapter.safetensors"})
package lora
