package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ranking"
	"github.com/kirillkom/grounded-rag/internal/infrastructure/resilience"
)

// RepairEmbeddingStatus sets the embedding_status payload of the point holding chunkID to
// embedded when its vector is usable and to pending otherwise. Repeated calls converge on
// the same status.
func (c *Client) RepairEmbeddingStatus(ctx context.Context, chunkID string) (domain.EmbeddingStatus, error) {
	page, err := c.scroll(ctx, map[string]any{
		"limit":        1,
		"with_payload": true,
		"with_vector":  true,
		"filter":       chunkFilter(chunkID),
	})
	if err != nil {
		return "", err
	}
	if len(page.Result.Points) == 0 {
		return "", domain.WrapError(domain.ErrChunkNotFound, "repair embedding status", fmt.Errorf("chunk %s", chunkID))
	}
	point := page.Result.Points[0]

	want := domain.EmbeddingPending
	if ranking.ValidEmbedding(point.Vector, c.dimension) {
		want = domain.EmbeddingEmbedded
	}
	if domain.EmbeddingStatus(getStringPayload(point.Payload, "embedding_status")) == want {
		return want, nil
	}

	if err := c.setPayload(ctx, point.ID, map[string]any{"embedding_status": string(want)}); err != nil {
		return "", err
	}
	return want, nil
}

// chunkFilter matches the chunk_id payload, or the point id itself when chunkID is a
// valid Qdrant id.
func chunkFilter(chunkID string) map[string]any {
	should := []map[string]any{
		{"key": "chunk_id", "match": map[string]any{"value": chunkID}},
	}
	if n, err := strconv.ParseUint(chunkID, 10, 64); err == nil {
		should = append(should, map[string]any{"has_id": []any{n}})
	} else if _, err := uuid.Parse(chunkID); err == nil {
		should = append(should, map[string]any{"has_id": []any{chunkID}})
	}
	return map[string]any{"should": should}
}

func (c *Client) setPayload(ctx context.Context, pointID any, payload map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"payload": payload,
		"points":  []any{pointID},
	})
	if err != nil {
		return fmt.Errorf("marshal set payload body: %w", err)
	}
	url := fmt.Sprintf("%s/collections/%s/points/payload?wait=true", c.baseURL, c.collection)

	do := func(callCtx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("create set payload request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("qdrant set payload request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return struct{}{}, resilience.NewHTTPStatusError(serviceName, "set_payload", resp)
		}
		return struct{}{}, nil
	}

	if c.executor == nil {
		_, err = do(ctx)
	} else {
		_, err = resilience.Call(ctx, c.executor, "qdrant_set_payload", do, resilience.ClassifyHTTPError)
	}
	if err != nil {
		return resilience.WrapTemporary("qdrant set payload", err, resilience.ClassifyHTTPError)
	}
	return nil
}
