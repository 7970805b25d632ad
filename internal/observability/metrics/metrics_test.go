package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestRecordRankObservationExportsRankSeries(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordRankObservation("api", "rank", &domain.RankResult{
		Results: []domain.ResultEntry{
			{ChunkID: "c1", Forced: true, OverrideReason: domain.OverrideAnchorMatch},
			{ChunkID: "c2"},
		},
		Reason:       domain.ReasonLowScore,
		FallbackUsed: true,
		Diagnostics: domain.DiagnosticReport{
			FallbackSummaries: []domain.SummaryFallbackEntry{{DocumentID: "d1"}},
			Candidates: []domain.CandidateDiagnostic{
				{ChunkID: "c3", Status: domain.CandidateSkipped},
				{ChunkID: "c1", Status: domain.CandidateForced},
			},
		},
	}, 20*time.Millisecond)

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`paa_rank_requests_total{endpoint="rank",service="api"} 1`,
		`paa_rank_fallback_total{reason="low score",service="api"} 1`,
		`paa_rank_forced_total{kind="anchor-match",service="api"} 1`,
		`paa_rank_summary_fallback_total{endpoint="rank",service="api"} 1`,
		`paa_rank_skipped_chunks_total{service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestMiddlewareCollapsesUnknownPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/123", nil))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `paa_http_requests_total{method="GET",path="other",service="api",status="404"} 1`) {
		t.Fatalf("expected collapsed path label:\n%s", body)
	}
}

func TestDependencyMetrics(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordEmbedCacheLookup("api", true)
	m.RecordEmbedCacheLookup("api", false)
	m.SetBreakerState("api", "ollama_embed", gobreaker.StateOpen)
	m.RecordRejected("api", "rate_limit")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`paa_embed_cache_lookups_total{result="hit",service="api"} 1`,
		`paa_embed_cache_lookups_total{result="miss",service="api"} 1`,
		`paa_dependency_circuit_breaker_state{operation="ollama_embed",service="api"} 2`,
		`paa_http_rejected_total{reason="rate_limit",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestWorkerMetricsCountsRepairs(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRepair()
	m.FinishRepair("worker", time.Millisecond, nil)
	m.StartRepair()
	m.FinishRepair("worker", time.Millisecond, errors.New("boom"))

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`paa_worker_chunk_repair_total{service="worker",status="success"} 1`,
		`paa_worker_chunk_repair_total{service="worker",status="error"} 1`,
		`paa_worker_chunk_repair_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}
