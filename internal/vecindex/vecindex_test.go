package vecindex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(0)

	a, err := e.Embed("graph databases and knowledge management")
	require.NoError(t, err)
	b, err := e.Embed("graph databases and knowledge management")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, e.Dimensions())
}

func TestLocalEmbedderNormalized(t *testing.T) {
	e := NewLocalEmbedder(0)
	vec, err := e.Embed("some note content about distributed systems")
	require.NoError(t, err)

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

func TestLocalEmbedderEmptyText(t *testing.T) {
	e := NewLocalEmbedder(0)
	vec, err := e.Embed("")
	require.NoError(t, err)
	assert.Len(t, vec, e.Dimensions())
}

func TestLocalEmbedderSimilarityOrdering(t *testing.T) {
	e := NewLocalEmbedder(0)

	base, _ := e.Embed("golang concurrency patterns with channels and goroutines")
	near, _ := e.Embed("concurrency in golang using goroutines and channels")
	far, _ := e.Embed("sourdough bread baking hydration ratios")

	assert.Greater(t, cosineSimilarity(base, near), cosineSimilarity(base, far))
}

func TestMemoryUpsertSearch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(NewLocalEmbedder(0))

	require.NoError(t, idx.Upsert(ctx, "n1", "golang concurrency channels goroutines select", map[string]string{"title": "Go Concurrency"}))
	require.NoError(t, idx.Upsert(ctx, "n2", "sourdough bread baking flour water salt", nil))

	results, err := idx.Search(ctx, "goroutines and channels in golang", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "n1", results[0].ID)
	assert.Equal(t, "Go Concurrency", results[0].Metadata["title"])
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemorySearchLimit(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(NewLocalEmbedder(0))
	require.NoError(t, idx.Upsert(ctx, "a", "alpha content", nil))
	require.NoError(t, idx.Upsert(ctx, "b", "beta content", nil))
	require.NoError(t, idx.Upsert(ctx, "c", "gamma content", nil))

	results, err := idx.Search(ctx, "content", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(NewLocalEmbedder(0))

	require.NoError(t, idx.Upsert(ctx, "n1", "original text", nil))
	require.NoError(t, idx.Upsert(ctx, "n1", "replacement text", nil))

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, ids)
}

func TestMemoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(NewLocalEmbedder(0))
	require.NoError(t, idx.Upsert(ctx, "n1", "one", nil))
	require.NoError(t, idx.Upsert(ctx, "n2", "two", nil))

	require.NoError(t, idx.Delete(ctx, "n1"))
	require.NoError(t, idx.Delete(ctx, "n1")) // absent id is a no-op

	ids, err := idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"n2"}, ids)

	require.NoError(t, idx.Clear(ctx))
	ids, err = idx.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
