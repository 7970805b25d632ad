package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	reflectionNoteLimit = 50
	reflectionTermLimit = 64
	reflectionMinLength = 4
)

var reflectionStopwords = map[string]bool{
	"about": true, "after": true, "again": true, "also": true, "been": true,
	"before": true, "being": true, "could": true, "does": true, "from": true,
	"have": true, "here": true, "into": true, "just": true, "like": true,
	"more": true, "most": true, "much": true, "need": true, "only": true,
	"other": true, "over": true, "should": true, "some": true, "such": true,
	"than": true, "that": true, "their": true, "them": true, "then": true,
	"there": true, "these": true, "they": true, "this": true, "those": true,
	"very": true, "want": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "will": true, "with": true,
	"would": true, "your": true, "think": true, "today": true, "still": true,
}

// ReflectionRepository reads the caller's own reflective notes.
type ReflectionRepository struct {
	db *sql.DB
}

func NewReflectionRepository(db *sql.DB) *ReflectionRepository {
	return &ReflectionRepository{db: db}
}

func (r *ReflectionRepository) RecentTerms(ctx context.Context, callerID string, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT body
FROM reflection_notes
WHERE caller_id = $1 AND created_at >= $2
ORDER BY created_at DESC, id
LIMIT $3
`, callerID, since.UTC(), reflectionNoteLimit)
	if err != nil {
		return nil, fmt.Errorf("list reflection notes: %w", err)
	}
	defer rows.Close()

	bodies := make([]string, 0)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan reflection note: %w", err)
		}
		bodies = append(bodies, body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reflection notes: %w", err)
	}
	return mineTerms(bodies, reflectionTermLimit), nil
}

// mineTerms keeps unique lower-cased non-stopword words of at least four letters, in
// first-seen order.
func mineTerms(texts []string, limit int) []string {
	seen := make(map[string]bool)
	terms := make([]string, 0)
	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			if len([]rune(w)) < reflectionMinLength || reflectionStopwords[w] || seen[w] {
				continue
			}
			seen[w] = true
			terms = append(terms, w)
			if len(terms) >= limit {
				return terms
			}
		}
	}
	return terms
}

// PreferenceRepository stores one assistant-preference embedding per caller.
type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(db *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// PreferenceVector returns nil without error when the caller has no preference.
func (r *PreferenceRepository) PreferenceVector(ctx context.Context, callerID string) ([]float32, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `
SELECT embedding
FROM caller_preferences
WHERE caller_id = $1
`, callerID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load preference vector: %w", err)
	}
	return decodeEmbedding(raw), nil
}
