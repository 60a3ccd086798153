package nn

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lora/internal/tensor"
)

// block is a two-level test container: block{dense, norm, inner{proj}}.
type block struct {
	dense *Linear
	norm  *LayerNorm
	inner *innerBlock
	drop  *Dropout
}

type innerBlock struct {
	proj Module
}

func (b *innerBlock) Parameters() []*Parameter { return nil }
func (b *innerBlock) Children() []Child        { return []Child{{"proj", b.proj}} }
func (b *innerBlock) SetChild(name string, m Module) error {
	if name != "proj" {
		return fmt.Errorf("innerBlock has no child %q", name)
	}
	b.proj = m
	return nil
}

func (b *block) Parameters() []*Parameter { return nil }
func (b *block) Children() []Child {
	return []Child{{"dense", b.dense}, {"LayerNorm", b.norm}, {"inner", b.inner}, {"dropout", b.drop}}
}

func newBlock(seed uint64) *block {
	rng := rand.New(rand.NewPCG(seed, seed))
	return &block{
		dense: NewLinear(4, 3, true, DefaultInitStd, rng),
		norm:  NewLayerNorm(3, 1e-5),
		inner: &innerBlock{proj: NewLinear(3, 3, false, DefaultInitStd, rng)},
		drop:  NewDropout(0.5, rng),
	}
}

func TestNamedParameters(t *testing.T) {
	names := ParameterNames(newBlock(1))
	assert.Equal(t, []string{
		"LayerNorm.bias",
		"LayerNorm.weight",
		"dense.bias",
		"dense.weight",
		"inner.proj.weight",
	}, names)
}

func TestWalk_SkipChildren(t *testing.T) {
	var visited []string
	Walk(newBlock(1), func(path string, m Module) bool {
		visited = append(visited, path)
		return path != "inner"
	})
	assert.Equal(t, []string{"", "dense", "LayerNorm", "inner", "dropout"}, visited)
}

func TestRoles(t *testing.T) {
	b := newBlock(1)
	roles := map[string]Role{}
	for _, p := range NamedParameters(b) {
		roles[p.Name] = p.Roles()
	}

	assert.Equal(t, RoleOther, roles["dense.weight"])
	assert.Equal(t, RoleBias, roles["dense.bias"])
	assert.Equal(t, RoleLayerNorm, roles["LayerNorm.weight"])
	assert.True(t, roles["LayerNorm.bias"].Has(RoleLayerNorm|RoleBias))

	TagAll(b.inner, RoleEmbedding)
	for _, p := range NamedParameters(b) {
		if p.Name == "inner.proj.weight" {
			assert.Equal(t, RoleEmbedding, p.Roles())
		} else {
			assert.False(t, p.Roles().Any(RoleEmbedding), p.Name)
		}
	}

	assert.Equal(t, "other", RoleOther.String())
	assert.Equal(t, "bias|layernorm", (RoleBias | RoleLayerNorm).String())
}

func TestStateDict_RoundTrip(t *testing.T) {
	src := newBlock(1)
	dst := newBlock(2)
	require.False(t, src.dense.Weight.Tensor().Equal(dst.dense.Weight.Tensor()))

	res, err := LoadStateDict(dst, StateDict(src), true)
	require.NoError(t, err)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.Unexpected)

	for name, v := range StateDict(src) {
		assert.True(t, v.Equal(StateDict(dst)[name]), name)
	}
}

func TestLoadStateDict_NonStrict(t *testing.T) {
	dst := newBlock(2)
	sd := StateDict(newBlock(1))
	delete(sd, "dense.bias")
	sd["lora_extra"] = tensor.Zeros(tensor.Shape{1})

	_, err := LoadStateDict(dst, sd, true)
	assert.Error(t, err)

	res, err := LoadStateDict(dst, sd, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"dense.bias"}, res.Missing)
	assert.Equal(t, []string{"lora_extra"}, res.Unexpected)
}

func TestLoadStateDict_ShapeMismatch(t *testing.T) {
	sd := StateDict(newBlock(1))
	sd["dense.weight"] = tensor.Zeros(tensor.Shape{4, 3})

	_, err := LoadStateDict(newBlock(2), sd, false)
	assert.ErrorContains(t, err, "dense.weight")
}

func TestSetChild(t *testing.T) {
	b := newBlock(1)
	replacement := NewLinear(3, 3, true, DefaultInitStd, rand.New(rand.NewPCG(9, 9)))

	require.NoError(t, b.inner.SetChild("proj", replacement))
	assert.Contains(t, ParameterNames(b), "inner.proj.bias")
	assert.Error(t, b.inner.SetChild("missing", replacement))
}

func TestSetTraining(t *testing.T) {
	b := newBlock(1)
	assert.False(t, b.drop.Training())

	SetTraining(b, true)
	assert.True(t, b.drop.Training())

	SetTraining(b, false)
	assert.False(t, b.drop.Training())
}
