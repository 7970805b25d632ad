package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
)

const (
	serviceName     = "qdrant"
	defaultPageSize = 128
)

// Client reads chunk points (payload plus vector) from one collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
	pageSize   int
	dimension  int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithDimension sets the vector length RepairEmbeddingStatus accepts. Zero accepts any
// non-empty vector.
func WithDimension(dim int) Option {
	return func(c *Client) {
		c.dimension = dim
	}
}

func New(baseURL, collection string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pageSize:   defaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scrollPoint struct {
	ID      any            `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type scrollResponse struct {
	Result struct {
		Points         []scrollPoint `json:"points"`
		NextPageOffset any           `json:"next_page_offset"`
	} `json:"result"`
}

// ListCandidates scrolls the collection with the scope as payload filter and returns at
// most limit chunks ordered by document and chunk order.
func (c *Client) ListCandidates(ctx context.Context, scope domain.Scope, limit int) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0)
	var offset any

	for {
		pageSize := c.pageSize
		if limit > 0 && limit-len(chunks) < pageSize {
			pageSize = limit - len(chunks)
		}

		reqBody := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
			"with_vector":  true,
		}
		if filter := scopeFilter(scope); filter != nil {
			reqBody["filter"] = filter
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		page, err := c.scroll(ctx, reqBody)
		if err != nil {
			return nil, err
		}
		for _, point := range page.Result.Points {
			chunks = append(chunks, pointToChunk(point))
		}

		offset = page.Result.NextPageOffset
		if offset == nil || len(page.Result.Points) == 0 || (limit > 0 && len(chunks) >= limit) {
			break
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		if chunks[i].Order != chunks[j].Order {
			return chunks[i].Order < chunks[j].Order
		}
		return chunks[i].ID < chunks[j].ID
	})
	return chunks, nil
}

func (c *Client) scroll(ctx context.Context, reqBody map[string]any) (*scrollResponse, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal scroll body: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)

	do := func(callCtx context.Context) (*scrollResponse, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create scroll request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, resilience.NewHTTPStatusError(serviceName, "scroll", resp)
		}
		var out scrollResponse
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode scroll response: %w", err)
		}
		return &out, nil
	}

	var out *scrollResponse
	if c.executor == nil {
		out, err = do(ctx)
	} else {
		out, err = resilience.Call(ctx, c.executor, "qdrant_scroll", do, resilience.ClassifyHTTPError)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant scroll", err, resilience.ClassifyHTTPError)
	}
	return out, nil
}

func scopeFilter(scope domain.Scope) map[string]any {
	must := make([]map[string]any, 0, 3)
	if v := strings.TrimSpace(scope.ContextID); v != "" {
		must = append(must, map[string]any{"key": "context_id", "match": map[string]any{"value": v}})
	}
	if v := strings.TrimSpace(scope.ProjectID); v != "" {
		must = append(must, map[string]any{"key": "project_id", "match": map[string]any{"value": v}})
	}
	if len(scope.DocumentIDs) > 0 {
		must = append(must, map[string]any{"key": "document_id", "match": map[string]any{"any": scope.DocumentIDs}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func pointToChunk(point scrollPoint) domain.Chunk {
	p := point.Payload
	id := getStringPayload(p, "chunk_id")
	if id == "" {
		id = fmt.Sprintf("%v", point.ID)
	}
	return domain.Chunk{
		ID:              id,
		DocumentID:      getStringPayload(p, "document_id"),
		Order:           int(getFloatPayload(p, "chunk_order")),
		Text:            getStringPayload(p, "text"),
		Embedding:       point.Vector,
		EmbeddingStatus: domain.EmbeddingStatus(getStringPayload(p, "embedding_status")),
		IsGlossary:      getBoolPayload(p, "is_glossary"),
		GlossaryScore:   getFloatPayload(p, "glossary_score"),
		GlossaryBoost:   getFloatPayload(p, "glossary_boost"),
		WeakGlossary:    getBoolPayload(p, "weak_glossary"),
		AnchorID:        getStringPayload(p, "anchor_id"),
		AnchorSlug:      getStringPayload(p, "anchor_slug"),
		Tags:            getStringsPayload(p, "tags"),
		Fingerprint:     getStringPayload(p, "fingerprint"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getFloatPayload(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func getBoolPayload(payload map[string]any, key string) bool {
	v, _ := payload[key].(bool)
	return v
}

func getStringsPayload(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
