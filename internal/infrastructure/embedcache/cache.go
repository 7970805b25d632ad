package embedcache

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const defaultSize = 10000

// Embedder decorates a ports.Embedder with an in-memory LRU keyed by model and text.
// Cached vectors are copied on the way in and out.
type Embedder struct {
	next  ports.Embedder
	model string
	cache *lru.Cache[[32]byte, []float32]

	// OnLookup, when set, is called once per text with whether it was served from cache.
	OnLookup func(hit bool)
}

func New(next ports.Embedder, model string, size int) (*Embedder, error) {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[[32]byte, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{next: next, model: model, cache: cache}, nil
}

func (e *Embedder) key(text string) [32]byte {
	return sha256.Sum256([]byte(e.model + "\x00" + text))
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make([]string, 0)
	missingAt := make([]int, 0)

	for i, text := range texts {
		if vector, ok := e.cache.Get(e.key(text)); ok {
			out[i] = clone(vector)
			e.observe(true)
			continue
		}
		e.observe(false)
		missing = append(missing, text)
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(missing))
	}
	for j, vector := range vectors {
		if len(vector) > 0 {
			e.cache.Add(e.key(missing[j]), clone(vector))
		}
		out[missingAt[j]] = vector
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vector, ok := e.cache.Get(key); ok {
		e.observe(true)
		return clone(vector), nil
	}
	e.observe(false)

	vector, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) > 0 {
		e.cache.Add(key, clone(vector))
	}
	return vector, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}

func (e *Embedder) observe(hit bool) {
	if e.OnLookup != nil {
		e.OnLookup(hit)
	}
}

func clone(vector []float32) []float32 {
	out := make([]float32, len(vector))
	copy(out, vector)
	return out
}
