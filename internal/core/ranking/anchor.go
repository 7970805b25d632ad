package ranking

import (
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

// MatchAnchors returns the slugs of anchors referenced by query, in anchor-set order.
// An anchor matches when its slug or label is a case-insensitive substring of the query,
// when one of its tags is a whitespace-separated query word, or when fuzzy accepts it.
func MatchAnchors(query string, anchors []domain.Anchor, fuzzy ports.AnchorFuzzyMatcher) []string {
	lowerQuery := strings.ToLower(query)
	words := whitespaceWords(query)

	out := make([]string, 0)
	seen := make(map[string]struct{}, len(anchors))
	for _, anchor := range anchors {
		key := strings.ToLower(strings.TrimSpace(anchor.Slug))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if !anchorMatches(query, lowerQuery, words, anchor, fuzzy) {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, anchor.Slug)
	}
	return out
}

func anchorMatches(
	query, lowerQuery string,
	words map[string]struct{},
	anchor domain.Anchor,
	fuzzy ports.AnchorFuzzyMatcher,
) bool {
	if slug := strings.ToLower(strings.TrimSpace(anchor.Slug)); slug != "" && strings.Contains(lowerQuery, slug) {
		return true
	}
	if label := strings.ToLower(strings.TrimSpace(anchor.Label)); label != "" && strings.Contains(lowerQuery, label) {
		return true
	}
	for _, tag := range anchor.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := words[tag]; ok {
			return true
		}
		if _, ok := words[slugify(tag)]; ok {
			return true
		}
	}
	return fuzzy != nil && fuzzy.MatchAnchor(query, anchor)
}

// anchorSet picks the anchors used for matching. Without auto-expand the curated focus
// terms are used, falling back to every anchor when none are curated.
func anchorSet(anchors []domain.Anchor, autoExpand bool) ([]domain.Anchor, bool) {
	if autoExpand {
		return anchors, false
	}
	focus := make([]domain.Anchor, 0, len(anchors))
	for _, anchor := range anchors {
		if anchor.IsFocusTerm {
			focus = append(focus, anchor)
		}
	}
	if len(focus) == 0 {
		return anchors, true
	}
	return focus, false
}

func slugify(s string) string {
	return strings.Join(strings.Fields(s), "-")
}

// TokenOverlapMatcher accepts an anchor when at least MinOverlap of its label tokens
// appear in the query. A zero MinOverlap disables it.
type TokenOverlapMatcher struct {
	MinOverlap float64
}

func (m TokenOverlapMatcher) MatchAnchor(query string, anchor domain.Anchor) bool {
	if m.MinOverlap <= 0 {
		return false
	}
	label := toTokenSet(anchor.Label)
	if len(label) == 0 {
		return false
	}
	return tokenOverlap(label, toTokenSet(query)) >= m.MinOverlap
}
