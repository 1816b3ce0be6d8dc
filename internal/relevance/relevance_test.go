package relevance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/embedding"
	"docuchat/internal/models"
)

type fakeProvider struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeRemote struct {
	chunks []models.Chunk
	err    error
	calls  int
}

func (f *fakeRemote) FindRelevant(context.Context, string, []models.Chunk, float64, int) ([]models.Chunk, error) {
	f.calls++
	return f.chunks, f.err
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{0.3, -0.7, 0.2}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityOpposite(t *testing.T) {
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 2}, []float32{-1, -2}), 1e-9)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity([]float32{1, 2, 3}, []float32{0, 0, 0}))
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	assert.Zero(t, CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Zero(t, CosineSimilarity(nil, []float32{1}))
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestCosineSimilarityClamped(t *testing.T) {
	// Tiny components can push the raw quotient past 1 through rounding.
	v := []float32{1e-20, 1e-20, 1e-20}
	sim := CosineSimilarity(v, v)
	assert.LessOrEqual(t, sim, 1.0)
	assert.GreaterOrEqual(t, sim, -1.0)
	assert.False(t, math.IsNaN(sim))
}

func TestFindRelevantScenario(t *testing.T) {
	v1 := []float32{1, 0}
	v2 := []float32{0, 1}
	pool := []models.Chunk{
		{Text: "The cat sat", Vector: v1},
		{Text: "on the mat", Vector: v2},
	}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{
		vectors: map[string][]float32{"where is the cat": v1},
	})
	engine := NewEngine(vec, nil)

	got := engine.FindRelevant(context.Background(), "where is the cat", pool, 0.7, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "The cat sat", got[0].Text)
}

func TestFindRelevantRespectsMaxResults(t *testing.T) {
	v := []float32{1, 0}
	var pool []models.Chunk
	for i := 0; i < 10; i++ {
		pool = append(pool, models.Chunk{Text: fmt.Sprintf("chunk %d", i), Vector: v})
	}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{
		vectors: map[string][]float32{"q": v},
	})
	engine := NewEngine(vec, nil)

	got := engine.FindRelevant(context.Background(), "q", pool, 0.5, 3)
	assert.Len(t, got, 3)
}

func TestFindRelevantStableOnTies(t *testing.T) {
	v := []float32{1, 0}
	pool := []models.Chunk{
		{Text: "first", Vector: v},
		{Text: "second", Vector: v},
		{Text: "third", Vector: v},
	}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{
		vectors: map[string][]float32{"q": v},
	})
	engine := NewEngine(vec, nil)

	got := engine.FindRelevant(context.Background(), "q", pool, 0.9, 5)
	require.Len(t, got, 3)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, "third", got[2].Text)
}

func TestFindRelevantEmptyPool(t *testing.T) {
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{})
	engine := NewEngine(vec, nil)
	assert.Empty(t, engine.FindRelevant(context.Background(), "q", nil, 0.7, 5))
}

func TestFindRelevantRecencyFallbackWhenEmbedderDown(t *testing.T) {
	pool := []models.Chunk{
		{Text: "oldest", Vector: []float32{1, 0}},
		{Text: "middle", Vector: []float32{0, 1}},
		{Text: "newest", Vector: []float32{1, 1}},
	}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{err: errors.New("provider down")})
	engine := NewEngine(vec, nil)

	got := engine.FindRelevant(context.Background(), "q", pool, 0.7, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "middle", got[0].Text)
	assert.Equal(t, "newest", got[1].Text)
}

func TestFindRelevantRecencyFallbackWhenNothingQualifies(t *testing.T) {
	pool := []models.Chunk{
		{Text: "a", Vector: []float32{0, 1}},
		{Text: "b", Vector: []float32{0, 1}},
	}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{
		vectors: map[string][]float32{"q": {1, 0}},
	})
	engine := NewEngine(vec, nil)

	// Everything scores 0, below threshold, so the recent tail substitutes.
	got := engine.FindRelevant(context.Background(), "q", pool, 0.7, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Text)
}

func TestFindRelevantPrefersRemote(t *testing.T) {
	remote := &fakeRemote{chunks: []models.Chunk{{Text: "from remote", Vector: []float32{1}}}}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{err: errors.New("should not be called")})
	engine := NewEngine(vec, remote)

	pool := []models.Chunk{{Text: "local", Vector: []float32{1}}}
	got := engine.FindRelevant(context.Background(), "q", pool, 0.7, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "from remote", got[0].Text)
	assert.Equal(t, 1, remote.calls)
}

func TestFindRelevantRemoteErrorFallsBackToLocal(t *testing.T) {
	remote := &fakeRemote{err: errors.New("backend down")}
	v := []float32{1, 0}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{
		vectors: map[string][]float32{"q": v},
	})
	engine := NewEngine(vec, remote)

	pool := []models.Chunk{{Text: "local", Vector: v}}
	got := engine.FindRelevant(context.Background(), "q", pool, 0.7, 5)
	require.Len(t, got, 1)
	assert.Equal(t, "local", got[0].Text)
}

func TestFindRelevantRemoteEmptyUsesRecency(t *testing.T) {
	remote := &fakeRemote{}
	vec := embedding.NewVectorizerWithProvider(&fakeProvider{})
	engine := NewEngine(vec, remote)

	pool := []models.Chunk{
		{Text: "a", Vector: []float32{1}},
		{Text: "b", Vector: []float32{1}},
	}
	got := engine.FindRelevant(context.Background(), "q", pool, 0.7, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Text)
}
