// ABOUTME: MCP server exposing the ingestion engine to assistants.
// ABOUTME: Wraps the MCP server with an ingester and read access to stored payloads.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/storage"
)

// Store is the read and delete surface the tools need.
type Store interface {
	ListPayloads(ctx context.Context, limit int) ([]*storage.PayloadSummary, error)
	GetPayload(ctx context.Context, idOrPrefix string) (*storage.PayloadDetail, error)
	DeletePayload(ctx context.Context, idOrPrefix string) error
	Stats(ctx context.Context) (map[string]int64, error)
}

// Server wraps the MCP server with ingestion and storage access.
type Server struct {
	mcpServer *mcp.Server
	store     Store
	ingester  ingest.Ingester
	log       *logger.Logger
}

// NewServer creates a new MCP server over the given store and ingester.
func NewServer(store Store, ingester ingest.Ingester, log *logger.Logger, version string) (*Server, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if version == "" {
		version = "dev"
	}
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "health-ingest",
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		store:     store,
		ingester:  ingester,
		log:       log.With("component", "mcp"),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
