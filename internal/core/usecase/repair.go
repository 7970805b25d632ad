package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

type RepairChunkUseCase struct {
	repairer ports.ChunkStatusRepairer
	logger   *slog.Logger
}

func NewRepairChunkUseCase(repairer ports.ChunkStatusRepairer, logger *slog.Logger) *RepairChunkUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepairChunkUseCase{repairer: repairer, logger: logger}
}

func (uc *RepairChunkUseCase) RepairChunk(ctx context.Context, chunkID string) error {
	chunkID = strings.TrimSpace(chunkID)
	if chunkID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "repair chunk", errors.New("chunk id is required"))
	}

	status, err := uc.repairer.RepairEmbeddingStatus(ctx, chunkID)
	if err != nil {
		return fmt.Errorf("repair embedding status: %w", err)
	}
	uc.logger.Info("chunk_repaired", "chunk_id", chunkID, "status", string(status))
	return nil
}
