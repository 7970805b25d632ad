package embedcache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	batches [][]string
	queries []string
	err     error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batches = append(c.batches, texts)
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		out = append(out, []float32{float32(len(text)), 1})
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queries = append(c.queries, text)
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedQueryIsCached(t *testing.T) {
	next := &countingEmbedder{}
	cache, err := New(next, "nomic", 8)
	require.NoError(t, err)

	hits := 0
	cache.OnLookup = func(hit bool) {
		if hit {
			hits++
		}
	}

	first, err := cache.EmbedQuery(context.Background(), "refund")
	require.NoError(t, err)
	first[0] = 42

	second, err := cache.EmbedQuery(context.Background(), "refund")
	require.NoError(t, err)

	assert.Equal(t, []string{"refund"}, next.queries)
	assert.Equal(t, []float32{6, 1}, second)
	assert.Equal(t, 1, hits)
}

func TestEmbedOnlyForwardsMisses(t *testing.T) {
	next := &countingEmbedder{}
	cache, err := New(next, "nomic", 8)
	require.NoError(t, err)

	_, err = cache.EmbedQuery(context.Background(), "aa")
	require.NoError(t, err)

	vectors, err := cache.Embed(context.Background(), []string{"aa", "bbb", "c"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"bbb", "c"}}, next.batches)
	assert.Equal(t, [][]float32{{2, 1}, {3, 1}, {1, 1}}, vectors)
	assert.Equal(t, 3, cache.Len())
}

func TestCacheKeysIncludeModel(t *testing.T) {
	next := &countingEmbedder{}
	a, err := New(next, "model-a", 8)
	require.NoError(t, err)
	b, err := New(next, "model-b", 8)
	require.NoError(t, err)

	assert.NotEqual(t, a.key("text"), b.key("text"))
}

func TestEmbedErrorIsNotCached(t *testing.T) {
	next := &countingEmbedder{err: errors.New("down")}
	cache, err := New(next, "nomic", 8)
	require.NoError(t, err)

	_, err = cache.EmbedQuery(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len())
}
