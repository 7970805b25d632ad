package ports

import (
	"context"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// ChunkRanker is the inbound contract for ranking a query against a scoped candidate set.
type ChunkRanker interface {
	RankChunks(ctx context.Context, req domain.RankRequest) (*domain.RankResult, error)
}

// ChunkRepairProcessor is the inbound contract for the asynchronous embedding-status repair.
type ChunkRepairProcessor interface {
	RepairChunk(ctx context.Context, chunkID string) error
}
