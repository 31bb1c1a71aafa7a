// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ctxvault tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/session"
	"github.com/starford/ctxvault/internal/vault"
)

// FormatResourceURI addresses the knowledge format contract resource.
const FormatResourceURI = "ctxvault://knowledge-format"

// Server wraps the MCP server with ctxvault tools.
type Server struct {
	mcp *server.MCPServer
	svc *vault.Service
}

// New creates a new MCP server with all ctxvault tools registered.
func New(svc *vault.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ctxvault",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	categories := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		categories[i] = string(c)
	}

	s.mcp.AddTool(mcp.NewTool("search_knowledge",
		mcp.WithDescription("Substring search over knowledge titles and summaries, newest first."),
		mcp.WithString("query", mcp.Description("Text to find (case-insensitive). Empty matches everything.")),
		mcp.WithString("category", mcp.Description("Optional category filter"), mcp.Enum(categories...)),
		mcp.WithNumber("limit", mcp.Description("Max results")),
	), s.searchKnowledge)

	s.mcp.AddTool(mcp.NewTool("search_fulltext",
		mcp.WithDescription("Ranked full-text search over knowledge titles, summaries and bodies."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Full-text query")),
		mcp.WithNumber("limit", mcp.Description("Max results")),
	), s.searchFullText)

	s.mcp.AddTool(mcp.NewTool("read_knowledge",
		mcp.WithDescription("Read a knowledge item file (header and body) by ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Knowledge item ID")),
	), s.readKnowledge)

	s.mcp.AddTool(mcp.NewTool("create_knowledge",
		mcp.WithDescription("Create a knowledge item. The vault assigns its ID, date and path. "+
			"Read the format contract first via get_format_contract or the "+FormatResourceURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body")),
		mcp.WithString("category", mcp.Required(), mcp.Enum(categories...)),
		mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Tags")),
		mcp.WithArray("source_sessions", mcp.WithStringItems(), mcp.Description("Originating session IDs")),
		mcp.WithArray("model_sources", mcp.WithStringItems(), mcp.Description("Contributing agents")),
		mcp.WithString("confidence", mcp.Enum("low", "medium", "high")),
		mcp.WithString("generated_by_skill", mcp.Description("Producing skill ID")),
	), s.createKnowledge)

	s.mcp.AddTool(mcp.NewTool("list_knowledge",
		mcp.WithDescription("List knowledge items from the file store, newest first."),
		mcp.WithString("category", mcp.Description("Optional category filter"), mcp.Enum(categories...)),
		mcp.WithNumber("limit", mcp.Description("Max items (default 50)")),
	), s.listKnowledge)

	s.mcp.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recorded sessions, newest first."),
		mcp.WithString("model", mcp.Description("Optional model source filter")),
		mcp.WithNumber("limit", mcp.Description("Max sessions (default 50)")),
	), s.listSessions)

	s.mcp.AddTool(mcp.NewTool("read_session",
		mcp.WithDescription("Read a session as a Markdown transcript."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Session ID")),
	), s.readSession)

	s.mcp.AddTool(mcp.NewTool("save_session",
		mcp.WithDescription("Save a session record given as JSON; writes the record and its transcript."),
		mcp.WithString("session", mcp.Required(), mcp.Description("Session record JSON")),
	), s.saveSession)

	s.mcp.AddTool(mcp.NewTool("get_format_contract",
		mcp.WithDescription("Returns the knowledge item format contract. "+
			"Call this before creating knowledge items."),
	), s.getFormatContract)

	s.mcp.AddTool(mcp.NewTool("vault_stats",
		mcp.WithDescription("Counts of indexed knowledge items and sessions."),
	), s.vaultStats)

	// Resource: knowledge format contract.
	s.mcp.AddResource(
		mcp.NewResource(FormatResourceURI, "Knowledge Format Contract",
			mcp.WithResourceDescription("On-disk format of knowledge items."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func optionalCategory(req mcp.CallToolRequest) (*models.Category, error) {
	raw := req.GetString("category", "")
	if raw == "" {
		return nil, nil
	}
	c := models.Category(raw)
	if !c.Valid() {
		return nil, fmt.Errorf("unknown category %q", raw)
	}
	return &c, nil
}

func (s *Server) searchKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hits, err := s.svc.Search(ctx, index.FilterQuery{
		Query:    req.GetString("query", ""),
		Category: models.Category(req.GetString("category", "")),
		Limit:    req.GetInt("limit", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hits)
}

func (s *Server) searchFullText(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.SearchFullText(ctx, query, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(hits)
}

func (s *Server) readKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetKnowledge(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(string(knowledge.Marshal(doc.Item, doc.Body))), nil
}

func (s *Server) createKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := s.svc.CreateKnowledge(ctx, knowledge.CreateParams{
		Title:            title,
		Content:          content,
		Category:         models.Category(category),
		Tags:             req.GetStringSlice("tags", nil),
		SourceSessions:   req.GetStringSlice("source_sessions", nil),
		ModelSources:     req.GetStringSlice("model_sources", nil),
		Confidence:       models.Confidence(req.GetString("confidence", "")),
		GeneratedBySkill: req.GetString("generated_by_skill", ""),
	})
	if doc == nil {
		return errorResult(err), nil
	}
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("created: %s (index not updated: %v)", doc.Item.ID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", doc.Item.ID)), nil
}

func (s *Server) listKnowledge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cat, err := optionalCategory(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.ListKnowledge(ctx, cat, req.GetInt("limit", 0))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(items)
}

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.svc.ListSessions(ctx, req.GetInt("limit", 0), req.GetString("model", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(list)
}

func (s *Server) readSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.GetSession(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(session.Transcript(sess)), nil
}

func (s *Server) saveSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("session")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid session JSON: %v", err)), nil
	}
	path, err := s.svc.SaveSession(ctx, &sess)
	if path == "" {
		return errorResult(err), nil
	}
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("saved: %s (index not updated: %v)", sess.SessionID, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", sess.SessionID)), nil
}

func (s *Server) getFormatContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(KnowledgeFormatContract), nil
}

func (s *Server) vaultStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(st)
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatResourceURI,
			MIMEType: "text/markdown",
			Text:     KnowledgeFormatContract,
		},
	}, nil
}
