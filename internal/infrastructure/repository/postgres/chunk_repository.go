package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ranking"
)

type ChunkRepository struct {
	db        *sql.DB
	dimension int
}

// NewChunkRepository builds the chunk store. dimension is the expected embedding length
// used by the status repair; zero accepts any length.
func NewChunkRepository(db *sql.DB, dimension int) *ChunkRepository {
	return &ChunkRepository{db: db, dimension: dimension}
}

func (r *ChunkRepository) ListCandidates(ctx context.Context, scope domain.Scope, limit int) ([]domain.Chunk, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3+len(scope.DocumentIDs))

	if v := strings.TrimSpace(scope.ContextID); v != "" {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("c.context_id = $%d", len(args)))
	}
	if v := strings.TrimSpace(scope.ProjectID); v != "" {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf("c.project_id = $%d", len(args)))
	}
	if len(scope.DocumentIDs) > 0 {
		from := len(args) + 1
		for _, id := range scope.DocumentIDs {
			args = append(args, id)
		}
		conditions = append(conditions, fmt.Sprintf("c.document_id IN (%s)", placeholders(from, len(scope.DocumentIDs))))
	}

	query := `
SELECT c.id, c.document_id, c.chunk_order, c.text, c.embedding, c.embedding_status,
	c.is_glossary, c.glossary_score, c.glossary_boost, c.weak_glossary,
	COALESCE(c.anchor_id, ''), COALESCE(a.slug, ''), c.tags, c.fingerprint
FROM chunks c
LEFT JOIN anchors a ON a.id = c.anchor_id`
	if len(conditions) > 0 {
		query += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	query += "\nORDER BY c.document_id, c.chunk_order, c.id"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidate chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]domain.Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate chunks: %w", err)
	}
	return chunks, nil
}

func scanChunk(rows *sql.Rows) (domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingRaw, tagsRaw []byte
	var status string

	err := rows.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Order, &chunk.Text, &embeddingRaw, &status,
		&chunk.IsGlossary, &chunk.GlossaryScore, &chunk.GlossaryBoost, &chunk.WeakGlossary,
		&chunk.AnchorID, &chunk.AnchorSlug, &tagsRaw, &chunk.Fingerprint,
	)
	if err != nil {
		return domain.Chunk{}, fmt.Errorf("scan chunk: %w", err)
	}
	chunk.EmbeddingStatus = domain.EmbeddingStatus(status)
	chunk.Embedding = decodeEmbedding(embeddingRaw)
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &chunk.Tags); err != nil {
			return domain.Chunk{}, fmt.Errorf("unmarshal chunk tags: %w", err)
		}
	}
	return chunk, nil
}

// decodeEmbedding returns nil for NULL or malformed JSON so the ranker can skip and
// repair the chunk instead of failing the whole query.
func decodeEmbedding(raw []byte) []float32 {
	if len(raw) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil
	}
	return vec
}

// RepairEmbeddingStatus sets embedded when the stored vector is usable and pending
// otherwise. Repeated calls converge on the same status.
func (r *ChunkRepository) RepairEmbeddingStatus(ctx context.Context, chunkID string) (domain.EmbeddingStatus, error) {
	var embeddingRaw []byte
	var current string
	err := r.db.QueryRowContext(ctx, `
SELECT embedding, embedding_status
FROM chunks
WHERE id = $1
`, chunkID).Scan(&embeddingRaw, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrChunkNotFound, "repair embedding status", fmt.Errorf("chunk %s", chunkID))
		}
		return "", fmt.Errorf("load chunk embedding: %w", err)
	}

	want := domain.EmbeddingPending
	if ranking.ValidEmbedding(decodeEmbedding(embeddingRaw), r.dimension) {
		want = domain.EmbeddingEmbedded
	}
	if domain.EmbeddingStatus(current) == want {
		return want, nil
	}

	if _, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET embedding_status = $2
WHERE id = $1
`, chunkID, string(want)); err != nil {
		return "", fmt.Errorf("update embedding status: %w", err)
	}
	return want, nil
}
