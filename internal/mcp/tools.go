// ABOUTME: MCP tool implementations for payload ingestion.
// ABOUTME: Ingest a payload, browse and delete stored payloads, and report row counts.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/models"
)

const defaultListLimit = 20

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "ingest_payload",
		Description: "Store a Health Auto Export JSON payload. Resubmitting the same payload is reported as a duplicate.",
	}, s.handleIngestPayload)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_payloads",
		Description: "List stored payloads, newest first",
	}, s.handleListPayloads)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_payload",
		Description: "Get a stored payload with its metrics and workouts",
	}, s.handleGetPayload)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_payload",
		Description: "Delete a payload and everything stored from it, by ID or ID prefix",
	}, s.handleDeletePayload)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_stats",
		Description: "Row counts for every storage table",
	}, s.handleGetStats)
}

// Input types

type ingestPayloadInput struct {
	Payload string `json:"payload" jsonschema:"the Health Auto Export JSON document"`
}

type listPayloadsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of payloads to return (default 20)"`
}

type payloadIDInput struct {
	ID string `json:"id" jsonschema:"payload ID or unique ID prefix"`
}

// Output types

type ingestPayloadOutput struct {
	Status            string `json:"status"`
	PayloadID         string `json:"payload_id"`
	MetricsProcessed  int    `json:"metrics_processed"`
	MetricsSkipped    int    `json:"metrics_skipped"`
	WorkoutsProcessed int    `json:"workouts_processed"`
	WorkoutsSkipped   int    `json:"workouts_skipped"`
}

type simpleOutput struct {
	Message string `json:"message"`
}

// Tool handlers

func (s *Server) handleIngestPayload(ctx context.Context, req *mcp.CallToolRequest, input ingestPayloadInput) (*mcp.CallToolResult, ingestPayloadOutput, error) {
	if strings.TrimSpace(input.Payload) == "" {
		return nil, ingestPayloadOutput{}, errors.New("payload is required")
	}
	p, err := models.DecodePayload(strings.NewReader(input.Payload))
	if err != nil {
		return nil, ingestPayloadOutput{}, err
	}

	res, err := s.ingester.Ingest(ctx, p)
	if err != nil {
		var fault *ingest.StorageFault
		if errors.As(err, &fault) {
			s.log.Error("ingest failed", "op", fault.Op, "error", err)
			return nil, ingestPayloadOutput{}, errors.New("payload was not stored; retry later")
		}
		return nil, ingestPayloadOutput{}, err
	}

	return nil, ingestPayloadOutput{
		Status:            string(res.Status),
		PayloadID:         res.PayloadID.String(),
		MetricsProcessed:  res.MetricsProcessed,
		MetricsSkipped:    res.MetricsSkipped,
		WorkoutsProcessed: res.WorkoutsProcessed,
		WorkoutsSkipped:   res.WorkoutsSkipped,
	}, nil
}

func (s *Server) handleListPayloads(ctx context.Context, req *mcp.CallToolRequest, input listPayloadsInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = defaultListLimit
	}

	payloads, err := s.store.ListPayloads(ctx, input.Limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list payloads: %w", err)
	}

	if len(payloads) == 0 {
		return nil, simpleOutput{Message: "No payloads stored."}, nil
	}

	return nil, map[string]any{"payloads": payloads}, nil
}

func (s *Server) handleGetPayload(ctx context.Context, req *mcp.CallToolRequest, input payloadIDInput) (*mcp.CallToolResult, any, error) {
	detail, err := s.store.GetPayload(ctx, input.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get payload: %w", err)
	}
	return nil, detail, nil
}

func (s *Server) handleDeletePayload(ctx context.Context, req *mcp.CallToolRequest, input payloadIDInput) (*mcp.CallToolResult, simpleOutput, error) {
	if err := s.store.DeletePayload(ctx, input.ID); err != nil {
		return nil, simpleOutput{}, fmt.Errorf("failed to delete payload: %w", err)
	}

	return nil, simpleOutput{
		Message: fmt.Sprintf("Deleted payload: %s", input.ID),
	}, nil
}

func (s *Server) handleGetStats(ctx context.Context, req *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return nil, map[string]any{"tables": stats}, nil
}
