package ranking

import (
	"strings"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const definitionPhrase = "refers to"

// queryGlossaryTerms extracts the glossary terms and acronym forms mentioned by the query.
func queryGlossaryTerms(query string, pairs []domain.AcronymPair, terms []string) []string {
	lowerQuery := strings.ToLower(query)
	tokens := toTokenSet(query)

	out := make([]string, 0)
	seen := make(map[string]struct{})
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		if !containsPhrase(lowerQuery, tokens, term) {
			return
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}

	for _, term := range terms {
		add(term)
	}
	for _, pair := range pairs {
		add(pair.Short)
		add(pair.Long)
	}
	return out
}

func glossaryTagged(chunk domain.Chunk) bool {
	if chunk.IsGlossary {
		return true
	}
	for _, tag := range chunk.Tags {
		if strings.EqualFold(strings.TrimSpace(tag), "glossary") {
			return true
		}
	}
	return false
}

// detectGlossary returns the glossary-detection bonus of one chunk and whether it counts
// as a glossary hit.
func detectGlossary(
	chunk domain.Chunk,
	lowerText string,
	tokens map[string]struct{},
	pairs []domain.AcronymPair,
	queryTerms []string,
	cfg domain.ScoringConfig,
) (float64, bool) {
	bonus := 0.0
	hit := false

	for _, pair := range pairs {
		if strings.TrimSpace(pair.Short) == "" || strings.TrimSpace(pair.Long) == "" {
			continue
		}
		if containsPhrase(lowerText, tokens, pair.Short) && containsPhrase(lowerText, tokens, pair.Long) {
			bonus += cfg.AcronymPairBonus
			hit = true
		}
	}
	if chunk.Order == 0 && strings.Contains(lowerText, definitionPhrase) {
		bonus += cfg.DefinitionPhraseBonus
		hit = true
	}
	if chunk.IsGlossary {
		bonus += cfg.GlossaryFlagBonus
		hit = true
	}
	if len(queryTerms) > 0 && glossaryTagged(chunk) {
		bonus += cfg.GlossaryTermBonus
	}
	return bonus, hit
}

func mentionsAnyTerm(lowerText string, tokens map[string]struct{}, terms []string) bool {
	for _, term := range terms {
		if containsPhrase(lowerText, tokens, term) {
			return true
		}
	}
	return false
}
