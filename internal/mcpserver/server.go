// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Biddge community tools via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/biddge/internal/apperr"
	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/models"
)

// SchemaURI is the resource URI of CommunitySchema.
const SchemaURI = "biddge://community-schema"

// Server wraps the MCP server with Biddge tools.
type Server struct {
	mcp *server.MCPServer
	svc *community.Service
}

// New creates a new MCP server with all Biddge tools registered.
func New(svc *community.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Biddge",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_communities",
		mcp.WithDescription("List all communities, optionally filtered by a search query "+
			"matched against name, category and description."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive search text")),
	), s.listCommunities)

	s.mcp.AddTool(mcp.NewTool("featured_communities",
		mcp.WithDescription("List the featured communities shown on the home page."),
	), s.featuredCommunities)

	s.mcp.AddTool(mcp.NewTool("get_community",
		mcp.WithDescription("Get one community by id. Read the "+SchemaURI+" resource for the field layout."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Community id")),
	), s.getCommunity)

	s.mcp.AddResource(
		mcp.NewResource(SchemaURI, "Community Schema",
			mcp.WithResourceDescription("Field layout of the community records returned by the tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSchemaResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type listOutput struct {
	Query       string             `json:"query,omitempty"`
	Total       int                `json:"total"`
	Communities []models.Community `json:"communities"`
}

func (s *Server) listCommunities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	res := s.svc.List(ctx)
	if res.Err != nil {
		return mcp.NewToolResultError(res.Message), nil
	}
	filtered := community.Filter(res.Communities, query)
	return jsonResult(listOutput{Query: query, Total: len(res.Communities), Communities: filtered})
}

type featuredOutput struct {
	Fallback    bool               `json:"fallback"`
	Communities []models.Community `json:"communities"`
}

func (s *Server) featuredCommunities(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.svc.Featured(ctx)
	if res.Failed() {
		return mcp.NewToolResultError(res.Message), nil
	}
	return jsonResult(featuredOutput{Fallback: res.UsedFallback, Communities: res.Communities})
}

func (s *Server) getCommunity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res := s.svc.Get(ctx, id)
	switch {
	case errors.Is(res.Err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.Message, id)), nil
	case res.Err != nil:
		return mcp.NewToolResultError(res.Message), nil
	}
	return jsonResult(res.Community)
}

func (s *Server) readSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SchemaURI,
			MIMEType: "text/markdown",
			Text:     CommunitySchema,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
