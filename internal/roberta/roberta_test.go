package roberta

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/loader"
	"github.com/born-ml/lora/internal/nn"
	"github.com/born-ml/lora/internal/tensor"
)

func tinyConfig() Config {
	cfg := DefaultConfig()
	cfg.VocabSize = 32
	cfg.HiddenSize = 8
	cfg.NumHiddenLayers = 2
	cfg.NumAttentionHeads = 2
	cfg.IntermediateSize = 16
	cfg.MaxPositionEmbeddings = 20
	return cfg
}

func newModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	m, err := New(cfg, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return m
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"heads do not divide hidden", func(c *Config) { c.NumAttentionHeads = 5 }},
		{"zero layers", func(c *Config) { c.NumHiddenLayers = 0 }},
		{"unknown position type", func(c *Config) { c.PositionEmbeddingType = "rotary" }},
		{"pad out of range", func(c *Config) { c.PadTokenID = c.VocabSize }},
		{"cross-attention on encoder", func(c *Config) { c.AddCrossAttention = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNew_UnknownActivation(t *testing.T) {
	cfg := tinyConfig()
	cfg.HiddenAct = "mish"
	_, err := New(cfg, rand.New(rand.NewPCG(1, 2)))
	assert.Error(t, err)
}

func TestModel_ParameterNames(t *testing.T) {
	m := newModel(t, tinyConfig())
	names := nn.ParameterNames(m)

	for _, want := range []string{
		"embeddings.word_embeddings.weight",
		"embeddings.position_embeddings.weight",
		"embeddings.token_type_embeddings.weight",
		"embeddings.LayerNorm.weight",
		"embeddings.LayerNorm.bias",
		"encoder.layer.0.attention.self.query.weight",
		"encoder.layer.0.attention.self.query.bias",
		"encoder.layer.0.attention.self.key.weight",
		"encoder.layer.0.attention.self.value.bias",
		"encoder.layer.0.attention.output.dense.weight",
		"encoder.layer.0.attention.output.LayerNorm.bias",
		"encoder.layer.1.intermediate.dense.weight",
		"encoder.layer.1.output.dense.bias",
		"encoder.layer.1.output.LayerNorm.weight",
		"pooler.dense.weight",
	} {
		assert.Contains(t, names, want)
	}
	// 5 embedding + 2 layers * 16 + 2 pooler
	assert.Len(t, names, 5+2*16+2)
}

func TestFeedForwardOutput_ResidualLayerNorm(t *testing.T) {
	cfg := tinyConfig()
	rng := rand.New(rand.NewPCG(5, 6))
	ff := NewFeedForwardOutput(cfg, rng)
	assert.Equal(t, []string{"LayerNorm.bias", "LayerNorm.weight", "dense.bias", "dense.weight"}, nn.ParameterNames(ff))

	hidden := tensor.Randn(tensor.Shape{2, 3, cfg.IntermediateSize}, rng)
	input := tensor.Randn(tensor.Shape{2, 3, cfg.HiddenSize}, rng)
	want := ff.LayerNorm.Forward(ff.Dense.Forward(hidden).Add(input))
	assert.True(t, ff.Forward(hidden, input).AllClose(want, 0, 0))

	layer := newModel(t, cfg).Encoder.Layer[0]
	assert.IsType(t, &FeedForwardOutput{}, layer.Output)
}

func TestModel_Roles(t *testing.T) {
	m := newModel(t, tinyConfig())
	for _, p := range nn.NamedParameters(m) {
		isEmbedding := p.Roles().Has(nn.RoleEmbedding)
		assert.Equal(t, strings.Contains(p.Name, "embeddings"), isEmbedding, p.Name)
		assert.Equal(t, strings.Contains(p.Name, "LayerNorm"), p.Roles().Has(nn.RoleLayerNorm), p.Name)
		assert.Equal(t, strings.Contains(p.Name, "bias"), p.Roles().Has(nn.RoleBias), p.Name)
	}
}

func TestModel_ForwardShapes(t *testing.T) {
	m := newModel(t, tinyConfig())
	out := m.Forward(Input{
		IDs:              [][]int{{0, 5, 6, 2}, {0, 7, 2, 1}},
		Mask:             [][]float32{{1, 1, 1, 1}, {1, 1, 1, 0}},
		OutputAttentions: true,
	})

	assert.Equal(t, tensor.Shape{2, 4, 8}, out.LastHidden.Shape())
	assert.Equal(t, tensor.Shape{2, 8}, out.Pooled.Shape())
	require.Len(t, out.Attentions, 2)
	assert.Equal(t, tensor.Shape{2, 2, 4, 4}, out.Attentions[0].Shape())
	assert.Nil(t, out.Present)

	// masked key gets zero probability
	probs := out.Attentions[0]
	for h := 0; h < 2; h++ {
		for q := 0; q < 4; q++ {
			assert.Zero(t, probs.At(1, h, q, 3))
		}
	}
}

func TestModel_MaskedTokenDoesNotLeak(t *testing.T) {
	m := newModel(t, tinyConfig())
	mask := [][]float32{{1, 1, 1, 0}}

	a := m.Forward(Input{IDs: [][]int{{0, 5, 6, 9}}, Mask: mask}).LastHidden
	b := m.Forward(Input{IDs: [][]int{{0, 5, 6, 17}}, Mask: mask}).LastHidden

	assert.True(t, a.Narrow(1, 0, 3).Equal(b.Narrow(1, 0, 3)))
	assert.False(t, a.Narrow(1, 3, 1).Equal(b.Narrow(1, 3, 1)))
}

func TestEmbeddings_PositionIDs(t *testing.T) {
	e := NewEmbeddings(tinyConfig(), rand.New(rand.NewPCG(1, 2)))

	got := e.PositionIDs([][]int{{0, 5, 6, 1, 1}, {0, 1, 7, 2, 1}}, 0)
	assert.Equal(t, [][]int{{2, 3, 4, 1, 1}, {2, 1, 3, 4, 1}}, got)

	got = e.PositionIDs([][]int{{9}}, 4)
	assert.Equal(t, [][]int{{6}}, got)
}

func TestEmbeddings_PaddingRowsZero(t *testing.T) {
	cfg := tinyConfig()
	e := NewEmbeddings(cfg, rand.New(rand.NewPCG(1, 2)))
	row := e.WordEmbeddings.Forward([]int{cfg.PadTokenID})
	assert.True(t, row.Equal(tensor.Zeros(tensor.Shape{1, cfg.HiddenSize})))
}

func TestModel_DecoderCacheMatchesFullPass(t *testing.T) {
	for _, position := range []string{PositionAbsolute, PositionRelativeKey, PositionRelativeKeyQuery} {
		t.Run(position, func(t *testing.T) {
			cfg := tinyConfig()
			cfg.IsDecoder = true
			cfg.PositionEmbeddingType = position
			m := newModel(t, cfg)

			ids := []int{0, 5, 6, 7, 2}
			full := m.Forward(Input{IDs: [][]int{ids}})
			require.Len(t, full.Present, cfg.NumHiddenLayers)
			assert.Equal(t, 5, full.Present[0].Self.Len())

			prefix := m.Forward(Input{IDs: [][]int{ids[:4]}})
			step := m.Forward(Input{IDs: [][]int{ids[4:]}, Past: prefix.Present})

			assert.Equal(t, 5, step.Present[0].Self.Len())
			assert.Equal(t, tensor.Shape{1, 1, 8}, step.LastHidden.Shape())
			assert.True(t, step.LastHidden.AllClose(full.LastHidden.Narrow(1, 4, 1), 1e-4, 1e-5))
		})
	}
}

func TestModel_CrossAttention(t *testing.T) {
	cfg := tinyConfig()
	cfg.IsDecoder = true
	cfg.AddCrossAttention = true
	m := newModel(t, cfg)

	rng := rand.New(rand.NewPCG(3, 4))
	enc := tensor.Randn(tensor.Shape{1, 3, 8}, rng)

	out := m.Forward(Input{
		IDs:              [][]int{{0, 5, 6}},
		EncoderHidden:    enc,
		EncoderMask:      [][]float32{{1, 1, 0}},
		OutputAttentions: true,
	})
	assert.Equal(t, tensor.Shape{1, 3, 8}, out.LastHidden.Shape())
	require.Len(t, out.CrossAttentions, 2)
	assert.Equal(t, tensor.Shape{1, 2, 3, 3}, out.CrossAttentions[0].Shape())
	require.NotNil(t, out.Present[0].Cross)
	assert.Equal(t, 3, out.Present[0].Cross.Len())

	// second step reuses the cached cross keys/values
	step := m.Forward(Input{
		IDs:           [][]int{{7}},
		EncoderHidden: enc,
		EncoderMask:   [][]float32{{1, 1, 0}},
		Past:          out.Present,
	})
	assert.Equal(t, tensor.Shape{1, 1, 8}, step.LastHidden.Shape())
	assert.Same(t, out.Present[0].Cross.Key, step.Present[0].Cross.Key)
	assert.Equal(t, 4, step.Present[0].Self.Len())
}

func TestModel_HeadMask(t *testing.T) {
	m := newModel(t, tinyConfig())
	out := m.Forward(Input{
		IDs:              [][]int{{0, 5, 6, 2}},
		HeadMask:         tensor.MustFromSlice([]float32{1, 0}, tensor.Shape{2}),
		OutputAttentions: true,
	})
	for q := 0; q < 4; q++ {
		for k := 0; k < 4; k++ {
			assert.Zero(t, out.Attentions[1].At(0, 1, q, k))
		}
	}
	assert.Panics(t, func() {
		m.Forward(Input{IDs: [][]int{{0, 2}}, HeadMask: tensor.Ones(tensor.Shape{3})})
	})
}

func TestSelfAttention_RelativeParameters(t *testing.T) {
	cfg := tinyConfig()
	cfg.PositionEmbeddingType = PositionRelativeKeyQuery
	a := NewSelfAttention(cfg, rand.New(rand.NewPCG(1, 2)))

	require.NotNil(t, a.DistanceEmbedding)
	assert.Equal(t, tensor.Shape{2*cfg.MaxPositionEmbeddings - 1, cfg.HeadSize()}, a.DistanceEmbedding.Weight.Tensor().Shape())
	assert.Contains(t, nn.ParameterNames(a), "distance_embedding.weight")
}

func TestSelfAttention_AttendWithOwnProjections(t *testing.T) {
	cfg := tinyConfig()
	cfg.PositionEmbeddingType = PositionRelativeKey
	a := NewSelfAttention(cfg, rand.New(rand.NewPCG(1, 2)))
	x := tensor.Randn(tensor.Shape{2, 3, 8}, rand.New(rand.NewPCG(5, 6)))

	in := AttentionInput{Hidden: x, OutputAttentions: true}
	got := a.Attend(in, a.Query.Forward, a.Value.Forward)
	want := a.Forward(in)
	assert.True(t, got.Context.Equal(want.Context))
	assert.True(t, got.Probs.Equal(want.Probs))
	assert.Nil(t, got.Present)
}

func TestAttention_SetChild(t *testing.T) {
	cfg := tinyConfig()
	rng := rand.New(rand.NewPCG(1, 2))
	att := NewAttention(cfg, rng)

	replacement := NewSelfAttention(cfg, rng)
	require.NoError(t, att.SetChild("self", replacement))
	assert.Same(t, replacement, att.Self)

	assert.Error(t, att.SetChild("output", replacement))
	assert.Error(t, att.SetChild("self", nn.NewDropout(0.1, rng)))
}

func TestPretrained_RoundTrip(t *testing.T) {
	root := t.TempDir()
	src := newModel(t, tinyConfig())
	require.NoError(t, SavePretrained(filepath.Join(root, "tiny"), src))

	dst, err := FromPretrained(loader.Dir{Root: root}, "tiny", rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	assert.Equal(t, src.Config, dst.Config)

	srcState, dstState := nn.StateDict(src), nn.StateDict(dst)
	require.Len(t, dstState, len(srcState))
	for name, want := range srcState {
		assert.True(t, want.Equal(dstState[name]), name)
	}

	in := Input{IDs: [][]int{{0, 5, 6, 2}}}
	assert.True(t, src.Forward(in).LastHidden.Equal(dst.Forward(in).LastHidden))
}

func TestPretrained_NotFound(t *testing.T) {
	_, err := FromPretrained(loader.Dir{Root: t.TempDir()}, "missing", rand.New(rand.NewPCG(1, 2)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, loader.ErrNotFound))
}
