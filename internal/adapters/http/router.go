package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
	"github.com/kirillkom/grounded-rag/internal/observability/metrics"
)

const rankEndpoint = "rank"

type Router struct {
	ranker  ports.ChunkRanker
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
	service string

	apiKey           string
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	requestTimeout   time.Duration
	maxBodyBytes     int64
}

type RouterOption func(*Router)

func WithMetrics(service string, m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.service = service
		rt.metrics = m
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(cfg config.Config, ranker ports.ChunkRanker, opts ...RouterOption) *Router {
	rt := &Router{
		ranker:           ranker,
		logger:           slog.Default(),
		service:          "api",
		apiKey:           strings.TrimSpace(cfg.APIKey),
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		requestTimeout:   cfg.APIRequestTimeout,
		maxBodyBytes:     cfg.APIMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	var rank http.Handler = http.HandlerFunc(rt.rankChunks)
	rank = rt.authMiddleware(rank)
	rank = backpressureMiddleware(rank, rt.maxInFlight, rt.backpressureWait, rt.onReject)
	rank = rateLimitMiddleware(rank, rt.rateLimitRPS, rt.rateLimitBurst, rt.onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/rag/rank", rank)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onReject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(rt.service, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type rankScopeBody struct {
	ContextID   string   `json:"context_id"`
	ProjectID   string   `json:"project_id"`
	DocumentIDs []string `json:"document_ids"`
}

type rankRequestBody struct {
	Query    string                  `json:"query"`
	Scope    rankScopeBody           `json:"scope"`
	CallerID string                  `json:"caller_id"`
	Now      *time.Time              `json:"now"`
	Options  domain.ScoringOverrides `json:"options"`
}

func (b rankRequestBody) toDomain() domain.RankRequest {
	req := domain.RankRequest{
		Query: b.Query,
		Scope: domain.Scope{
			ContextID:   strings.TrimSpace(b.Scope.ContextID),
			ProjectID:   strings.TrimSpace(b.Scope.ProjectID),
			DocumentIDs: b.Scope.DocumentIDs,
		},
		CallerID:  strings.TrimSpace(b.CallerID),
		Overrides: b.Options,
	}
	if b.Now != nil {
		req.Now = *b.Now
	}
	return req
}

func (rt *Router) rankChunks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if rt.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxBodyBytes)
	}
	var body rankRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	ctx := r.Context()
	if rt.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := rt.ranker.RankChunks(ctx, body.toDomain())
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.logger.Error("rank_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
		if rt.metrics != nil {
			rt.metrics.RecordRankError(rt.service, rankEndpoint, strconv.Itoa(status))
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRankObservation(rt.service, rankEndpoint, result, time.Since(start))
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
