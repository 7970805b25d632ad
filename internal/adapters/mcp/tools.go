package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const rankToolName = "rank_chunks"

func rankChunksTool() mcp.Tool {
	return mcp.Tool{
		Name:        rankToolName,
		Description: "Score and rank document chunks that ground an answer to the query, with fallback diagnostics",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "User query text",
				},
				"scope": map[string]any{
					"type":        "object",
					"description": "Restricts the candidate set",
					"properties": map[string]any{
						"context_id":   map[string]any{"type": "string"},
						"project_id":   map[string]any{"type": "string"},
						"document_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
				"caller_id": map[string]any{
					"type":        "string",
					"description": "Caller whose anchor weights, preferences and reflections apply",
				},
				"options": map[string]any{
					"type":        "object",
					"description": "Per-request scoring overrides",
					"properties": map[string]any{
						"score_threshold": map[string]any{"type": "number"},
						"min_score":       map[string]any{"type": "number"},
						"fallback_min":    map[string]any{"type": "number"},
						"fallback_limit":  map[string]any{"type": "integer"},
						"force_chunks":    map[string]any{"type": "boolean"},
						"force_fallback":  map[string]any{"type": "boolean"},
						"min_rag_score":   map[string]any{"type": "number"},
						"auto_expand":     map[string]any{"type": "boolean"},
						"keywords":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

type rankArguments struct {
	Query string `json:"query"`
	Scope struct {
		ContextID   string   `json:"context_id"`
		ProjectID   string   `json:"project_id"`
		DocumentIDs []string `json:"document_ids"`
	} `json:"scope"`
	CallerID string                  `json:"caller_id"`
	Options  domain.ScoringOverrides `json:"options"`
}

func decodeRankArguments(request mcp.CallToolRequest) (rankArguments, error) {
	var args rankArguments
	raw, err := json.Marshal(request.GetArguments())
	if err != nil {
		return args, err
	}
	err = json.Unmarshal(raw, &args)
	return args, err
}

func (s *Server) handleRankChunks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decodeRankArguments(request)
	if err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	if strings.TrimSpace(args.Query) == "" {
		return mcp.NewToolResultError("query parameter is required and cannot be empty"), nil
	}

	start := time.Now()
	result, err := s.ranker.RankChunks(ctx, domain.RankRequest{
		Query: args.Query,
		Scope: domain.Scope{
			ContextID:   strings.TrimSpace(args.Scope.ContextID),
			ProjectID:   strings.TrimSpace(args.Scope.ProjectID),
			DocumentIDs: args.Scope.DocumentIDs,
		},
		CallerID:  strings.TrimSpace(args.CallerID),
		Overrides: args.Options,
	})
	if err != nil {
		s.logger.Error("mcp_rank_failed", "tool", rankToolName, "error", err)
		return mcp.NewToolResultError("ranking failed: " + err.Error()), nil
	}
	if s.observer != nil {
		s.observer.RecordRankObservation(ServerName, "mcp", result, time.Since(start))
	}

	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}
