package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ListSummaries returns non-empty summaries in the order of documentIDs.
func (r *DocumentRepository) ListSummaries(ctx context.Context, documentIDs []string) ([]domain.DocumentSummary, error) {
	if len(documentIDs) == 0 {
		return []domain.DocumentSummary{}, nil
	}

	args := make([]any, 0, len(documentIDs))
	for _, id := range documentIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, title, summary
FROM documents
WHERE id IN (%s) AND summary <> ''
`, placeholders(1, len(documentIDs))), args...)
	if err != nil {
		return nil, fmt.Errorf("list document summaries: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.DocumentSummary, len(documentIDs))
	for rows.Next() {
		var summary domain.DocumentSummary
		if err := rows.Scan(&summary.DocumentID, &summary.Title, &summary.Summary); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		byID[summary.DocumentID] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document summaries: %w", err)
	}

	out := make([]domain.DocumentSummary, 0, len(byID))
	for _, id := range documentIDs {
		if summary, ok := byID[id]; ok {
			out = append(out, summary)
			delete(byID, id)
		}
	}
	return out, nil
}
