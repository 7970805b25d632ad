package ports

import (
	"context"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// Embedder builds vectors for query and summary text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore returns the bounded candidate set for a scope, in a stable scan order.
type ChunkStore interface {
	ListCandidates(ctx context.Context, scope domain.Scope, limit int) ([]domain.Chunk, error)
}

// AnchorStore returns every anchor visible to a scope; focus terms are flagged.
type AnchorStore interface {
	ListAnchors(ctx context.Context, scope domain.Scope) ([]domain.Anchor, error)
}

// AnchorWeightSource returns per-caller anchor weights keyed by anchor slug.
type AnchorWeightSource interface {
	AnchorWeights(ctx context.Context, callerID string) (map[string]float64, error)
}

// GlossaryTable exposes known acronym pairs and glossary terms. Read-only.
type GlossaryTable interface {
	AcronymPairs() []domain.AcronymPair
	Terms() []string
}

// ReflectionTermSource mines terms from the caller's recent reflective notes.
type ReflectionTermSource interface {
	RecentTerms(ctx context.Context, callerID string, since time.Time) ([]string, error)
}

// PreferenceVectorSource returns the caller's assistant-preference embedding, or nil.
type PreferenceVectorSource interface {
	PreferenceVector(ctx context.Context, callerID string) ([]float32, error)
}

// DocumentSummaryStore reads document-level summaries for the summary fallback.
type DocumentSummaryStore interface {
	ListSummaries(ctx context.Context, documentIDs []string) ([]domain.DocumentSummary, error)
}

// AnchorFuzzyMatcher is the pluggable fuzzy anchor match.
type AnchorFuzzyMatcher interface {
	MatchAnchor(query string, anchor domain.Anchor) bool
}

// ChunkRepairQueue publishes/consumes embedding-status repair events.
type ChunkRepairQueue interface {
	PublishChunkRepair(ctx context.Context, chunkID string) error
	SubscribeChunkRepair(ctx context.Context, handler func(context.Context, string) error) error
}

// ChunkStatusRepairer fixes an inconsistent embedding status in storage. Idempotent.
type ChunkStatusRepairer interface {
	RepairEmbeddingStatus(ctx context.Context, chunkID string) (domain.EmbeddingStatus, error)
}
