package metrics

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func (m *HTTPServerMetrics) RecordRankObservation(service, endpoint string, result *domain.RankResult, duration time.Duration) {
	m.rankRequestsTotal.WithLabelValues(service, endpoint).Inc()
	m.rankDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())
	if result == nil {
		return
	}
	m.rankResults.WithLabelValues(service, endpoint).Observe(float64(len(result.Results)))

	if result.FallbackUsed {
		reason := result.Reason
		if reason == "" {
			reason = "override"
		}
		m.rankFallbackTotal.WithLabelValues(service, reason).Inc()
	}
	for _, entry := range result.Results {
		if entry.Forced && entry.OverrideReason != "" {
			m.rankForcedTotal.WithLabelValues(service, entry.OverrideReason).Inc()
		}
	}
	if len(result.Diagnostics.FallbackSummaries) > 0 {
		m.rankSummaryFallbackTotal.WithLabelValues(service, endpoint).Inc()
	}

	skipped := 0
	for _, candidate := range result.Diagnostics.Candidates {
		if candidate.Status == domain.CandidateSkipped {
			skipped++
		}
	}
	if skipped > 0 {
		m.rankSkippedChunksTotal.WithLabelValues(service).Add(float64(skipped))
	}
}

func (m *HTTPServerMetrics) RecordRankError(service, endpoint, status string) {
	if status == "" {
		status = "unknown"
	}
	m.rankErrorsTotal.WithLabelValues(service, endpoint, status).Inc()
}

func (m *HTTPServerMetrics) RecordEmbedCacheLookup(service string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.embedCacheLookupsTotal.WithLabelValues(service, result).Inc()
}

func (m *HTTPServerMetrics) SetBreakerState(service, operation string, state gobreaker.State) {
	var value float64
	switch state {
	case gobreaker.StateHalfOpen:
		value = 1
	case gobreaker.StateOpen:
		value = 2
	}
	m.breakerState.WithLabelValues(service, operation).Set(value)
}
