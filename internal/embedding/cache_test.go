package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingGenerator records how many texts it was asked to embed.
type countingGenerator struct {
	singleCalls int
	batchTexts  int
	err         error
}

func (g *countingGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.singleCalls++
	return []float32{float32(len(text)), 1}, nil
}

func (g *countingGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.batchTexts += len(texts)
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text)), 1}
	}
	return vecs, nil
}

func (g *countingGenerator) GetModel() string { return "counting-model" }

func TestCachedGeneratorHitAvoidsSecondCall(t *testing.T) {
	inner := &countingGenerator{}
	gen, err := NewCachedGenerator(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := gen.Embed(ctx, "user likes pizza")
	require.NoError(t, err)

	second, err := gen.Embed(ctx, "user likes pizza")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.singleCalls)
}

func TestCachedGeneratorKeyedByNormalizedText(t *testing.T) {
	inner := &countingGenerator{}
	gen, err := NewCachedGenerator(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gen.Embed(ctx, "User Likes Pizza")
	require.NoError(t, err)
	_, err = gen.Embed(ctx, "  user   likes pizza ")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.singleCalls)
}

func TestCachedGeneratorBatchServesHits(t *testing.T) {
	inner := &countingGenerator{}
	gen, err := NewCachedGenerator(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gen.Embed(ctx, "user plays chess")
	require.NoError(t, err)
	inner.singleCalls = 0

	vecs, err := gen.EmbedBatch(ctx, []string{"user plays chess", "user lives in Berlin"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.NotNil(t, vecs[0])
	assert.NotNil(t, vecs[1])

	// Only the miss went to the inner generator.
	assert.Equal(t, 1, inner.batchTexts)
}

func TestCachedGeneratorBatchAllHits(t *testing.T) {
	inner := &countingGenerator{}
	gen, err := NewCachedGenerator(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gen.EmbedBatch(ctx, []string{"a fact", "another fact"})
	require.NoError(t, err)
	inner.batchTexts = 0

	_, err = gen.EmbedBatch(ctx, []string{"a fact", "another fact"})
	require.NoError(t, err)
	assert.Equal(t, 0, inner.batchTexts)
}

func TestCachedGeneratorErrorNotCached(t *testing.T) {
	inner := &countingGenerator{err: errors.New("remote down")}
	gen, err := NewCachedGenerator(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = gen.Embed(ctx, "user likes pizza")
	require.Error(t, err)

	inner.err = nil
	vec, err := gen.Embed(ctx, "user likes pizza")
	require.NoError(t, err)
	assert.NotNil(t, vec)
	assert.Equal(t, 1, inner.singleCalls)
}

func TestCachedGeneratorEviction(t *testing.T) {
	inner := &countingGenerator{}
	gen, err := NewCachedGenerator(inner, 2)
	require.NoError(t, err)

	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		_, err := gen.Embed(ctx, text)
		require.NoError(t, err)
	}

	// "one" was evicted by "three"; re-embedding it calls the inner
	// generator again.
	inner.singleCalls = 0
	_, err = gen.Embed(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.singleCalls)
}

func TestCachedGeneratorGetModel(t *testing.T) {
	gen, err := NewCachedGenerator(&countingGenerator{}, 0)
	require.NoError(t, err)
	assert.Equal(t, "counting-model", gen.GetModel())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "user likes pizza", Normalize("  User   LIKES\tpizza "))
	assert.Equal(t, "", Normalize("   "))
}
