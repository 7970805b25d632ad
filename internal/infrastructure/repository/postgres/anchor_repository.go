package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

type AnchorRepository struct {
	db *sql.DB
}

func NewAnchorRepository(db *sql.DB) *AnchorRepository {
	return &AnchorRepository{db: db}
}

// ListAnchors returns global anchors plus those of the scope's project, ordered by slug.
func (r *AnchorRepository) ListAnchors(ctx context.Context, scope domain.Scope) ([]domain.Anchor, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, slug, label, tags, is_focus_term
FROM anchors
WHERE project_id = '' OR project_id = $1
ORDER BY slug, id
`, strings.TrimSpace(scope.ProjectID))
	if err != nil {
		return nil, fmt.Errorf("list anchors: %w", err)
	}
	defer rows.Close()

	anchors := make([]domain.Anchor, 0)
	for rows.Next() {
		var anchor domain.Anchor
		var tagsRaw []byte
		if err := rows.Scan(&anchor.ID, &anchor.Slug, &anchor.Label, &tagsRaw, &anchor.IsFocusTerm); err != nil {
			return nil, fmt.Errorf("scan anchor: %w", err)
		}
		if len(tagsRaw) > 0 {
			if err := json.Unmarshal(tagsRaw, &anchor.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal anchor tags: %w", err)
			}
		}
		anchors = append(anchors, anchor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchors: %w", err)
	}
	return anchors, nil
}

// AnchorWeights returns the caller's anchor weights keyed by lower-cased slug.
func (r *AnchorRepository) AnchorWeights(ctx context.Context, callerID string) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT anchor_slug, weight
FROM anchor_weights
WHERE caller_id = $1
`, callerID)
	if err != nil {
		return nil, fmt.Errorf("list anchor weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var slug string
		var weight float64
		if err := rows.Scan(&slug, &weight); err != nil {
			return nil, fmt.Errorf("scan anchor weight: %w", err)
		}
		weights[strings.ToLower(slug)] = weight
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate anchor weights: %w", err)
	}
	return weights, nil
}
