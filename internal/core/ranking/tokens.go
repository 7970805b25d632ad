package ranking

import (
	"strings"
	"unicode"
)

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

// whitespaceWords lower-cases s and splits it on whitespace, trimming edge punctuation.
func whitespaceWords(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if f != "" {
			out[f] = struct{}{}
		}
	}
	return out
}

func tokenOverlap(want, have map[string]struct{}) float64 {
	if len(want) == 0 || len(have) == 0 {
		return 0
	}
	matches := 0
	for token := range want {
		if _, ok := have[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(want))
}

// containsPhrase matches single-token phrases on token boundaries and longer phrases as
// substrings of the lower-cased text.
func containsPhrase(lowerText string, tokens map[string]struct{}, phrase string) bool {
	parts := splitAlphaNumLower(phrase)
	switch len(parts) {
	case 0:
		return false
	case 1:
		_, ok := tokens[parts[0]]
		return ok
	default:
		return strings.Contains(lowerText, strings.ToLower(strings.TrimSpace(phrase)))
	}
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
