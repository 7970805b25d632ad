package domain

import "time"

const (
	ReasonForcedOverride = "forced override"
	ReasonForced         = "forced"
	ReasonLowScore       = "low score"

	// OverrideAnchorMatch tags every chunk added by the override injector.
	OverrideAnchorMatch = "anchor-match"

	ExclusionBelowThreshold = "score < threshold"
	ExclusionTopK           = "top-k drop"

	FallbackTypeSummary = "summary"
)

type CandidateStatus string

const (
	CandidateSkipped  CandidateStatus = "skipped"
	CandidateDropped  CandidateStatus = "dropped"
	CandidateFiltered CandidateStatus = "filtered"
	CandidateSelected CandidateStatus = "selected"
	CandidateForced   CandidateStatus = "forced"
)

// BoostBreakdown records the contribution of every scoring step.
// LengthFactor and AnchorWeightFactor are multipliers, the rest are additive.
type BoostBreakdown struct {
	Preference         float64 `json:"preference"`
	AnchorWeightFactor float64 `json:"anchor_weight_factor"`
	AnchorSlug         float64 `json:"anchor_slug"`
	LengthFactor       float64 `json:"length_factor"`
	Keyword            float64 `json:"keyword"`
	GlossaryDetection  float64 `json:"glossary_detection"`
	GlossaryScore      float64 `json:"glossary_score"`
	GlossaryBoost      float64 `json:"glossary_boost"`
	Reflection         float64 `json:"reflection"`
	FingerprintPenalty float64 `json:"fingerprint_penalty"`
	Anchor             float64 `json:"anchor"`
}

// ScoredCandidate lives for one query only.
type ScoredCandidate struct {
	Chunk            Chunk
	ScanIndex        int
	RawScore         float64
	FinalScore       float64
	AnchorConfidence float64
	GlossaryBoost    float64
	ReflectionBoost  float64
	GlossaryHit      bool
	AnchorMatched    bool
	KeywordHit       bool
	Boosts           BoostBreakdown
}

// GlossaryFlagged reports whether the candidate counts as glossary content for selection.
func (c ScoredCandidate) GlossaryFlagged() bool {
	return c.Chunk.IsGlossary || c.GlossaryHit
}

type ResultEntry struct {
	ChunkID          string         `json:"chunk_id"`
	DocumentID       string         `json:"document_id"`
	Order            int            `json:"order"`
	Text             string         `json:"text"`
	AnchorSlug       string         `json:"anchor_slug,omitempty"`
	RawScore         float64        `json:"raw_score"`
	FinalScore       float64        `json:"final_score"`
	AnchorConfidence float64        `json:"anchor_confidence"`
	GlossaryHit      bool           `json:"glossary_hit"`
	Boosts           BoostBreakdown `json:"boosts"`
	Forced           bool           `json:"forced"`
	OverrideReason   string         `json:"override_reason,omitempty"`
}

type CandidateDiagnostic struct {
	ChunkID         string          `json:"chunk_id"`
	DocumentID      string          `json:"document_id"`
	ScanIndex       int             `json:"scan_index"`
	Status          CandidateStatus `json:"status"`
	RawScore        float64         `json:"raw_score"`
	FinalScore      float64         `json:"final_score"`
	Boosts          BoostBreakdown  `json:"boosts"`
	GlossaryHit     bool            `json:"glossary_hit"`
	AnchorMatched   bool            `json:"anchor_matched"`
	KeywordHit      bool            `json:"keyword_hit"`
	ExclusionReason string          `json:"exclusion_reason,omitempty"`
	ForcedReason    string          `json:"forced_reason,omitempty"`
}

type SummaryFallbackEntry struct {
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title,omitempty"`
	Summary      string  `json:"summary"`
	Score        float64 `json:"score"`
	FallbackType string  `json:"fallback_type"`
}

type DiagnosticReport struct {
	Reason              string                 `json:"reason,omitempty"`
	FallbackUsed        bool                   `json:"fallback_used"`
	TopScore            float64                `json:"top_score"`
	RetrievedChunkCount int                    `json:"retrieved_chunk_count"`
	ScoredChunkCount    int                    `json:"scored_chunk_count"`
	AnchorMatchedIDs    []string               `json:"anchor_matched_ids"`
	FilteredOutIDs      []string               `json:"filtered_out_ids"`
	Overrides           map[string]string      `json:"overrides"`
	FallbackSummaries   []SummaryFallbackEntry `json:"fallback_summaries"`
	Warnings            []string               `json:"warnings"`
	RepairChunkIDs      []string               `json:"repair_chunk_ids,omitempty"`
	Candidates          []CandidateDiagnostic  `json:"candidates"`
}

// RankResult is the full answer of one ranking call. Empty Reason and TopChunkID mean "none".
type RankResult struct {
	Results             []ResultEntry    `json:"results"`
	Reason              string           `json:"reason,omitempty"`
	FallbackUsed        bool             `json:"fallback_used"`
	GlossaryPresent     bool             `json:"glossary_present"`
	TopScore            float64          `json:"top_score"`
	TopChunkID          string           `json:"top_chunk_id,omitempty"`
	GlossaryForced      bool             `json:"glossary_forced"`
	FocusFallback       bool             `json:"focus_fallback"`
	FilteredAnchorTerms []string         `json:"filtered_anchor_terms"`
	Diagnostics         DiagnosticReport `json:"diagnostics"`
}

type RankRequest struct {
	Query     string
	Scope     Scope
	CallerID  string
	Now       time.Time
	Overrides ScoringOverrides
}
