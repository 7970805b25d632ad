package domain

import "strings"

type EmbeddingStatus string

const (
	EmbeddingPending  EmbeddingStatus = "pending"
	EmbeddingEmbedded EmbeddingStatus = "embedded"
	EmbeddingFailed   EmbeddingStatus = "failed"
	EmbeddingSkipped  EmbeddingStatus = "skipped"
)

// Chunk is a pre-segmented span of document text. The ranking core never mutates it.
type Chunk struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	Order           int             `json:"order"`
	Text            string          `json:"text"`
	Embedding       []float32       `json:"-"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status"`
	IsGlossary      bool            `json:"is_glossary"`
	GlossaryScore   float64         `json:"glossary_score"`
	GlossaryBoost   float64         `json:"glossary_boost"`
	WeakGlossary    bool            `json:"weak_glossary,omitempty"`
	AnchorID        string          `json:"anchor_id,omitempty"`
	AnchorSlug      string          `json:"anchor_slug,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
}

func (c Chunk) HasAnchor() bool {
	return c.AnchorID != "" || c.AnchorSlug != ""
}

// Anchor is a named domain concept that can be matched against a query.
type Anchor struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Label       string   `json:"label"`
	Tags        []string `json:"tags,omitempty"`
	IsFocusTerm bool     `json:"is_focus_term"`
}

type AcronymPair struct {
	Short string `json:"short" yaml:"short"`
	Long  string `json:"long" yaml:"long"`
}

type DocumentSummary struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Summary    string `json:"summary"`
}

// Scope bounds which chunks are visible to one query.
type Scope struct {
	ContextID   string   `json:"context_id,omitempty"`
	ProjectID   string   `json:"project_id,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// IsEmpty reports whether the scope names no context, project or document.
func (s Scope) IsEmpty() bool {
	if strings.TrimSpace(s.ContextID) != "" || strings.TrimSpace(s.ProjectID) != "" {
		return false
	}
	for _, id := range s.DocumentIDs {
		if strings.TrimSpace(id) != "" {
			return false
		}
	}
	return true
}
