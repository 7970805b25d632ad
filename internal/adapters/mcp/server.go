// Package mcpadapter exposes chunk ranking as an MCP tool served over stdio.
package mcpadapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const (
	ServerName    = "grounded-rag"
	ServerVersion = "1.0.0"
)

// RankObserver receives one call per successful tool invocation.
type RankObserver interface {
	RecordRankObservation(service, endpoint string, result *domain.RankResult, duration time.Duration)
}

type Server struct {
	mcp      *server.MCPServer
	ranker   ports.ChunkRanker
	observer RankObserver
	logger   *slog.Logger
}

func NewServer(ranker ports.ChunkRanker, observer RankObserver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		ranker:   ranker,
		observer: observer,
		logger:   logger,
	}
	s.mcp.AddTool(rankChunksTool(), s.handleRankChunks)
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve(_ context.Context) error {
	return server.ServeStdio(s.mcp)
}
