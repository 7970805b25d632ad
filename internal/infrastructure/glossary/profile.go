package glossary

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

// Table is an immutable GlossaryTable loaded from a scoring profile.
type Table struct {
	acronyms []domain.AcronymPair
	terms    []string
}

func NewTable(acronyms []domain.AcronymPair, terms []string) *Table {
	t := &Table{}
	seen := make(map[string]struct{}, len(acronyms))
	for _, pair := range acronyms {
		short := strings.TrimSpace(pair.Short)
		long := strings.TrimSpace(pair.Long)
		if short == "" || long == "" {
			continue
		}
		key := strings.ToLower(short) + "\x00" + strings.ToLower(long)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		t.acronyms = append(t.acronyms, domain.AcronymPair{Short: short, Long: long})
	}
	termSeen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		key := strings.ToLower(term)
		if key == "" {
			continue
		}
		if _, ok := termSeen[key]; ok {
			continue
		}
		termSeen[key] = struct{}{}
		t.terms = append(t.terms, term)
	}
	return t
}

func (t *Table) AcronymPairs() []domain.AcronymPair {
	return append([]domain.AcronymPair(nil), t.acronyms...)
}

func (t *Table) Terms() []string {
	return append([]string(nil), t.terms...)
}

type profileFile struct {
	Acronyms []domain.AcronymPair `yaml:"acronyms"`
	Terms    []string             `yaml:"terms"`
	Scoring  yaml.Node            `yaml:"scoring"`
}

// Profile is a parsed scoring profile: the glossary table plus the scoring
// config with the profile's overrides applied on top of the base.
type Profile struct {
	Table   *Table
	Scoring domain.ScoringConfig
}

// Load reads a YAML scoring profile. An empty path or a missing file yields an
// empty table and the base config unchanged.
func Load(path string, base domain.ScoringConfig) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return &Profile{Table: NewTable(nil, nil), Scoring: base}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Profile{Table: NewTable(nil, nil), Scoring: base}, nil
		}
		return nil, fmt.Errorf("read scoring profile %s: %w", path, err)
	}
	return Parse(data, base)
}

// Parse decodes profile bytes. Fields absent from the scoring section keep the
// value they have in base.
func Parse(data []byte, base domain.ScoringConfig) (*Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode scoring profile: %w", err)
	}

	scoring := base
	scoring.Keywords = append([]string(nil), base.Keywords...)
	scoring.ForcingPhrases = append([]string(nil), base.ForcingPhrases...)
	if !file.Scoring.IsZero() {
		if err := file.Scoring.Decode(&scoring); err != nil {
			return nil, fmt.Errorf("decode scoring section: %w", err)
		}
	}

	return &Profile{
		Table:   NewTable(file.Acronyms, file.Terms),
		Scoring: scoring,
	}, nil
}
