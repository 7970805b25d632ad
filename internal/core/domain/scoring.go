package domain

// ScoringConfig holds every threshold and boost constant used by the ranking core.
// Deployment defaults come from DefaultScoringConfig and the environment; requests
// may override individual fields through ScoringOverrides.
type ScoringConfig struct {
	ScoreThreshold float64 `json:"score_threshold" yaml:"score_threshold"`
	MinScore       float64 `json:"min_score" yaml:"min_score"`
	FallbackMin    float64 `json:"fallback_min" yaml:"fallback_min"`
	FallbackLimit  int     `json:"fallback_limit" yaml:"fallback_limit"`
	StrongLimit    int     `json:"strong_limit" yaml:"strong_limit"`
	ForceChunks    bool    `json:"force_chunks" yaml:"force_chunks"`
	ForceFallback  bool    `json:"force_fallback" yaml:"force_fallback"`
	MinRAGScore    float64 `json:"min_rag_score" yaml:"min_rag_score"`
	SummaryLimit   int     `json:"summary_limit" yaml:"summary_limit"`
	AutoExpand     bool    `json:"auto_expand" yaml:"auto_expand"`

	// EmbeddingDimension is the expected vector length. Zero means the query vector
	// length is authoritative.
	EmbeddingDimension int `json:"embedding_dimension" yaml:"embedding_dimension"`

	Keywords       []string `json:"keywords,omitempty" yaml:"keywords"`
	ForcingPhrases []string `json:"forcing_phrases,omitempty" yaml:"forcing_phrases"`

	PreferenceWeight          float64 `json:"preference_weight" yaml:"preference_weight"`
	AnchorSlugBonus           float64 `json:"anchor_slug_bonus" yaml:"anchor_slug_bonus"`
	LengthNormBase            float64 `json:"length_norm_base" yaml:"length_norm_base"`
	LengthNormSpan            float64 `json:"length_norm_span" yaml:"length_norm_span"`
	LengthNormChars           int     `json:"length_norm_chars" yaml:"length_norm_chars"`
	MinCandidateScore         float64 `json:"min_candidate_score" yaml:"min_candidate_score"`
	KeywordBonus              float64 `json:"keyword_bonus" yaml:"keyword_bonus"`
	AcronymPairBonus          float64 `json:"acronym_pair_bonus" yaml:"acronym_pair_bonus"`
	DefinitionPhraseBonus     float64 `json:"definition_phrase_bonus" yaml:"definition_phrase_bonus"`
	GlossaryFlagBonus         float64 `json:"glossary_flag_bonus" yaml:"glossary_flag_bonus"`
	GlossaryTermBonus         float64 `json:"glossary_term_bonus" yaml:"glossary_term_bonus"`
	GlossaryBoostFactor       float64 `json:"glossary_boost_factor" yaml:"glossary_boost_factor"`
	ReflectionBoost           float64 `json:"reflection_boost" yaml:"reflection_boost"`
	MissingFingerprintPenalty float64 `json:"missing_fingerprint_penalty" yaml:"missing_fingerprint_penalty"`
	WeakGlossaryThreshold     float64 `json:"weak_glossary_threshold" yaml:"weak_glossary_threshold"`
	GlossaryMinScoreOverride  float64 `json:"glossary_min_score_override" yaml:"glossary_min_score_override"`
	AnchorBoost               float64 `json:"anchor_boost" yaml:"anchor_boost"`
	AnchorForceMinScore       float64 `json:"anchor_force_min_score" yaml:"anchor_force_min_score"`
	LowScoreWarning           float64 `json:"low_score_warning" yaml:"low_score_warning"`
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ScoreThreshold: 0.65,
		MinScore:       0.6,
		FallbackMin:    0.5,
		FallbackLimit:  3,
		StrongLimit:    3,
		MinRAGScore:    0.3,
		SummaryLimit:   3,

		ForcingPhrases: []string{
			"exact quote",
			"quote exactly",
			"verbatim",
			"word for word",
			"opening line",
			"first line",
			"first sentence",
		},

		PreferenceWeight:          0.1,
		AnchorSlugBonus:           0.05,
		LengthNormBase:            0.6,
		LengthNormSpan:            0.4,
		LengthNormChars:           500,
		MinCandidateScore:         0.05,
		KeywordBonus:              0.05,
		AcronymPairBonus:          0.1,
		DefinitionPhraseBonus:     0.05,
		GlossaryFlagBonus:         0.2,
		GlossaryTermBonus:         0.15,
		GlossaryBoostFactor:       0.2,
		ReflectionBoost:           0.15,
		MissingFingerprintPenalty: 0.05,
		WeakGlossaryThreshold:     0.1,
		GlossaryMinScoreOverride:  0.15,
		AnchorBoost:               0.1,
		AnchorForceMinScore:       0.1,
		LowScoreWarning:           0.15,
	}
}

// ScoringOverrides carries per-request changes. Nil fields keep the deployment value.
type ScoringOverrides struct {
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	MinScore       *float64 `json:"min_score,omitempty"`
	FallbackMin    *float64 `json:"fallback_min,omitempty"`
	FallbackLimit  *int     `json:"fallback_limit,omitempty"`
	ForceChunks    *bool    `json:"force_chunks,omitempty"`
	ForceFallback  *bool    `json:"force_fallback,omitempty"`
	MinRAGScore    *float64 `json:"min_rag_score,omitempty"`
	AutoExpand     *bool    `json:"auto_expand,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// Apply returns a copy of c with the non-nil overrides set.
func (c ScoringConfig) Apply(o ScoringOverrides) ScoringConfig {
	out := c
	if o.ScoreThreshold != nil {
		out.ScoreThreshold = *o.ScoreThreshold
	}
	if o.MinScore != nil {
		out.MinScore = *o.MinScore
	}
	if o.FallbackMin != nil {
		out.FallbackMin = *o.FallbackMin
	}
	if o.FallbackLimit != nil {
		out.FallbackLimit = *o.FallbackLimit
	}
	if o.ForceChunks != nil {
		out.ForceChunks = *o.ForceChunks
	}
	if o.ForceFallback != nil {
		out.ForceFallback = *o.ForceFallback
	}
	if o.MinRAGScore != nil {
		out.MinRAGScore = *o.MinRAGScore
	}
	if o.AutoExpand != nil {
		out.AutoExpand = *o.AutoExpand
	}
	if len(o.Keywords) > 0 {
		out.Keywords = append([]string(nil), o.Keywords...)
	}
	return out
}
