// ABOUTME: MCP resource implementations for stored payloads.
// ABOUTME: Provides health://recent and health://stats resources.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const recentLimit = 10

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "health://recent",
		Name:        "Recent Payloads",
		Description: "Last 10 stored payloads with metric and workout counts",
		MIMEType:    "application/json",
	}, s.handleRecentResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         "health://stats",
		Name:        "Storage Stats",
		Description: "Row counts for every storage table",
		MIMEType:    "application/json",
	}, s.handleStatsResource)
}

func (s *Server) handleRecentResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	payloads, err := s.store.ListPayloads(ctx, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payloads: %w", err)
	}
	return jsonResource("health://recent", map[string]any{"payloads": payloads})
}

func (s *Server) handleStatsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return jsonResource("health://stats", stats)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
