// Package mcpadapter exposes the auditor as MCP tools for agent clients.
package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

const (
	toolAuditQuery  = "audit_query"
	toolListFilings = "list_filings"
)

type Server struct {
	auditor ports.Auditor
	catalog ports.FilingCatalog
	logger  *zap.Logger
}

func NewServer(auditor ports.Auditor, catalog ports.FilingCatalog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{auditor: auditor, catalog: catalog, logger: logger}
}

// MCPServer builds the tool server. Callers serve it over a transport.
func (s *Server) MCPServer(version string) *server.MCPServer {
	srv := server.NewMCPServer("financial-compliance-auditor", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	srv.AddTool(mcp.NewTool(toolAuditQuery,
		mcp.WithDescription("Answer a question from indexed financial filings. Every statement in the answer cites its source chunk and page."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question to audit")),
		mcp.WithString("ticker", mcp.Description("Restrict to one company ticker")),
		mcp.WithString("industry", mcp.Description("Restrict to an industry")),
		mcp.WithNumber("year", mcp.Description("Restrict to a fiscal year")),
		mcp.WithString("filing_type", mcp.Description("Restrict to a filing type, for example 10-K")),
		mcp.WithString("jurisdiction", mcp.Description("Restrict to a jurisdiction")),
		mcp.WithBoolean("risk_only", mcp.Description("Only search filings flagged as high risk")),
	), s.handleAuditQuery)

	srv.AddTool(mcp.NewTool(toolListFilings,
		mcp.WithDescription("List filings in the catalog with their indexing status."),
	), s.handleListFilings)

	return srv
}

// ServeStdio blocks serving the tools on stdin and stdout.
func (s *Server) ServeStdio(version string) error {
	return server.ServeStdio(s.MCPServer(version))
}

func (s *Server) handleAuditQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	query := domain.Query{Question: strings.TrimSpace(question), Filters: filtersFromArgs(req)}
	ctx = logging.WithLogger(ctx, s.logger.With(zap.String("tool", toolAuditQuery)))

	result, err := s.auditor.Audit(ctx, query)
	if err != nil {
		s.logger.Warn("mcp_audit_failed", zap.Error(err))
		return mcp.NewToolResultErrorFromErr("audit failed", err), nil
	}
	return jsonResult(result)
}

func (s *Server) handleListFilings(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filings, err := s.catalog.List(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list filings failed", err), nil
	}
	return jsonResult(map[string]any{"filings": filings})
}

// filtersFromArgs only sets filters the caller actually passed.
func filtersFromArgs(req mcp.CallToolRequest) domain.ScopeFilters {
	args := req.GetArguments()
	var f domain.ScopeFilters
	str := func(name string) domain.OptionalString {
		if _, ok := args[name]; !ok {
			return domain.OptionalString{}
		}
		return domain.SomeString(req.GetString(name, ""))
	}
	f.Ticker = str("ticker")
	f.Industry = str("industry")
	f.FilingType = str("filing_type")
	f.Jurisdiction = str("jurisdiction")
	if _, ok := args["year"]; ok {
		f.Year = domain.SomeInt(req.GetInt("year", 0))
	}
	f.RiskOnly = req.GetBool("risk_only", false)
	return f
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
