package loader

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/serialization"
	"github.com/born-ml/lora/internal/tensor"
)

// writeModel creates a minimal model directory with config.json and the
// given tensors in model.safetensors.
func writeModel(t *testing.T, dir string, tensors map[string]*tensor.Tensor) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	config, err := json.Marshal(map[string]any{"model_type": "roberta", "hidden_size": 4})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), config, 0o600))
	require.NoError(t, serialization.WriteFile(filepath.Join(dir, "model.safetensors"), tensors, nil, serialization.WriteOptions{}))
}

func TestDir_ResolvePlainDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "roberta-base"), 0o755))

	dir, err := Dir{Root: root}.Resolve("roberta-base")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "roberta-base"), dir)
}

func TestDir_ResolveAbsolutePath(t *testing.T) {
	root := t.TempDir()

	dir, err := Dir{Root: "/nonexistent"}.Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, root, dir)
}

func TestDir_ResolveHubCache(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "models--FacebookAI--roberta-base")
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "snapshots", "aaa"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "snapshots", "bbb"), 0o755))

	t.Run("newest snapshot", func(t *testing.T) {
		dir, err := Dir{Root: root}.Resolve("FacebookAI/roberta-base")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(repo, "snapshots", "bbb"), dir)
	})

	t.Run("refs/main", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(repo, "refs"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(repo, "refs", "main"), []byte("aaa\n"), 0o600))

		dir, err := Dir{Root: root}.Resolve("FacebookAI/roberta-base")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(repo, "snapshots", "aaa"), dir)
	})
}

func TestDir_NotFound(t *testing.T) {
	root := t.TempDir()

	for _, id := range []string{"", "no-such-model", "org/no-such-model"} {
		_, err := Dir{Root: root}.Load(id)
		require.Error(t, err, id)
		assert.True(t, errors.Is(err, ErrNotFound), "id %q: %v", id, err)
	}
}

func TestDir_MissingConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "m"), 0o755))

	_, err := Dir{Root: root}.Load("m")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDir_NoWeights(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "m")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{}`), 0o600))

	_, err := Dir{Root: root}.Load("m")
	assert.ErrorIs(t, err, ErrNoWeights)
}

func TestDir_LoadSafeTensors(t *testing.T) {
	root := t.TempDir()
	writeModel(t, filepath.Join(root, "tiny"), map[string]*tensor.Tensor{
		"roberta.embeddings.word_embeddings.weight":         tensor.MustFromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 4}),
		"roberta.embeddings.LayerNorm.gamma":                tensor.Ones(tensor.Shape{4}),
		"roberta.embeddings.LayerNorm.beta":                 tensor.Zeros(tensor.Shape{4}),
		"lm_head.dense.weight":                              tensor.Zeros(tensor.Shape{4, 4}),
		"roberta.encoder.layer.0.attention.self.query.bias": tensor.Full(tensor.Shape{4}, 0.5),
	})

	pre, err := Dir{Root: root}.Load("tiny")
	require.NoError(t, err)

	assert.Equal(t, FormatSafeTensors, pre.Format)
	assert.Equal(t, filepath.Join(root, "tiny"), pre.Dir)
	assert.Len(t, pre.Tensors, 4)
	assert.Contains(t, pre.Tensors, "embeddings.word_embeddings.weight")
	assert.Contains(t, pre.Tensors, "embeddings.LayerNorm.weight")
	assert.Contains(t, pre.Tensors, "embeddings.LayerNorm.bias")
	assert.NotContains(t, pre.Tensors, "lm_head.dense.weight")
	assert.Equal(t, float32(6), pre.Tensors["embeddings.word_embeddings.weight"].At(1, 1))

	var cfg struct {
		ModelType  string `json:"model_type"`
		HiddenSize int    `json:"hidden_size"`
	}
	require.NoError(t, pre.DecodeConfig(&cfg))
	assert.Equal(t, "roberta", cfg.ModelType)
	assert.Equal(t, 4, cfg.HiddenSize)
}

func TestDir_LoadShardedSafeTensors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sharded")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(`{}`), 0o600))

	shard1 := map[string]*tensor.Tensor{"pooler.dense.weight": tensor.Ones(tensor.Shape{2, 2})}
	shard2 := map[string]*tensor.Tensor{"pooler.dense.bias": tensor.Zeros(tensor.Shape{2})}
	require.NoError(t, serialization.WriteFile(filepath.Join(dir, "model-00001-of-00002.safetensors"), shard1, nil, serialization.WriteOptions{}))
	require.NoError(t, serialization.WriteFile(filepath.Join(dir, "model-00002-of-00002.safetensors"), shard2, nil, serialization.WriteOptions{}))

	index, err := json.Marshal(safetensorsIndex{WeightMap: map[string]string{
		"pooler.dense.weight": "model-00001-of-00002.safetensors",
		"pooler.dense.bias":   "model-00002-of-00002.safetensors",
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors.index.json"), index, 0o600))

	pre, err := Dir{}.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, FormatSafeTensors, pre.Format)
	assert.Len(t, pre.Tensors, 2)
}

func TestDir_CustomMapper(t *testing.T) {
	root := t.TempDir()
	writeModel(t, filepath.Join(root, "m"), map[string]*tensor.Tensor{
		"a.weight": tensor.Ones(tensor.Shape{1}),
		"b.weight": tensor.Ones(tensor.Shape{1}),
	})

	pre, err := Dir{Root: root, Mapper: onlyA{}}.Load("m")
	require.NoError(t, err)
	assert.Len(t, pre.Tensors, 1)
	assert.Contains(t, pre.Tensors, "a.weight")
}

type onlyA struct{}

func (onlyA) MapName(name string) (string, bool) {
	return name, name == "a.weight"
}

func TestRobertaMapper(t *testing.T) {
	tests := []struct {
		in   string
		want string
		keep bool
	}{
		{"roberta.embeddings.word_embeddings.weight", "embeddings.word_embeddings.weight", true},
		{"bert.encoder.layer.3.output.LayerNorm.gamma", "encoder.layer.3.output.LayerNorm.weight", true},
		{"encoder.layer.3.output.LayerNorm.beta", "encoder.layer.3.output.LayerNorm.bias", true},
		{"encoder.layer.0.attention.self.query.weight", "encoder.layer.0.attention.self.query.weight", true},
		{"lm_head.bias", "", false},
		{"classifier.dense.weight", "", false},
		{"cls.predictions.bias", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := RobertaMapper{}.MapName(tt.in)
			assert.Equal(t, tt.keep, ok)
			if tt.keep {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormat_String(t *testing.T) {
	assert.Equal(t, "SafeTensors", FormatSafeTensors.String())
	assert.Equal(t, "PyTorch", FormatTorch.String())
	assert.Equal(t, "Unknown", FormatUnknown.String())
}
