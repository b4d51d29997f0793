// Package mcpserver exposes the advisor pipelines and saved analyses as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"advisor/pkg/analysis"
	"advisor/pkg/brainstorm"
	"advisor/pkg/export"
	"advisor/pkg/faults"
	"advisor/pkg/logx"
	"advisor/pkg/persistence"
	"advisor/pkg/version"
)

// Tool names.
const (
	ToolAnalyze        = "analyze_company"
	ToolBrainstorm     = "brainstorm"
	ToolListAnalyses   = "list_analyses"
	ToolExportAnalysis = "export_analysis"
)

// Server wraps the MCP SDK server.
type Server struct {
	MCPServer *sdkmcp.Server

	runner analysis.Runner
	store  *persistence.Store
	logger *logx.Logger
}

// NewServer creates an MCP server with the advisor tools registered. A nil store disables
// saving and the saved-analysis tools report a configuration error.
func NewServer(runner analysis.Runner, store *persistence.Store) *Server {
	s := &Server{
		MCPServer: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "advisor", Version: version.Version}, nil),
		runner:    runner,
		store:     store,
		logger:    logx.NewLogger("mcp"),
	}
	s.registerTools()
	return s
}

// Run serves over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Serving MCP over stdio")
	return s.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        ToolAnalyze,
		Description: "Run the four-stage AI consulting analysis for a company. Returns suggestions, an action plan and an ROI estimate.",
	}, s.handleAnalyze)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        ToolBrainstorm,
		Description: "Brainstorm AI ideas for a company from its name alone. Returns ideas, a ranked shortlist and an expert roundtable.",
	}, s.handleBrainstorm)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        ToolListAnalyses,
		Description: "List saved analyses, newest first.",
	}, s.handleListAnalyses)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        ToolExportAnalysis,
		Description: "Render a saved analysis as a CSV spreadsheet (excel), text report (pdf) or pitch deck (pitch).",
	}, s.handleExport)
}

// --- Tool input types ---

type analyzeInput struct {
	CompanyName      string `json:"companyName" jsonschema:"company name"`
	CompanyType      string `json:"companyType,omitempty" jsonschema:"company type, e.g. sme or enterprise"`
	Industry         string `json:"industry,omitempty" jsonschema:"industry"`
	Challenges       string `json:"challenges,omitempty" jsonschema:"current challenges"`
	Goals            string `json:"goals,omitempty" jsonschema:"business goals"`
	CurrentProcesses string `json:"currentProcesses,omitempty" jsonschema:"current processes and systems"`
	Save             bool   `json:"save,omitempty" jsonschema:"persist the analysis and return its id"`
}

type brainstormInput struct {
	CompanyName string `json:"companyName" jsonschema:"company name"`
}

type listInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of analyses (default 50)"`
}

type exportInput struct {
	ID     string `json:"id" jsonschema:"saved analysis id"`
	Format string `json:"format,omitempty" jsonschema:"excel, pdf or pitch (default pdf)"`
}

type savedOutput struct {
	ID       string           `json:"id"`
	Analysis *analysis.Result `json:"analysis"`
}

type exportOutput struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// --- Tool handlers ---

func (s *Server) handleAnalyze(ctx context.Context, _ *sdkmcp.CallToolRequest, input analyzeInput) (*sdkmcp.CallToolResult, any, error) {
	if input.Save && s.store == nil {
		return nil, nil, faults.MissingConfiguration("database.dsn")
	}
	in := analysis.CompanyInput{
		CompanyType:      input.CompanyType,
		CompanyName:      input.CompanyName,
		Industry:         input.Industry,
		Challenges:       input.Challenges,
		Goals:            input.Goals,
		CurrentProcesses: input.CurrentProcesses,
	}
	s.logger.Info("%s: %s", ToolAnalyze, in.RunSubject())
	res, err := analysis.Analyze(ctx, s.runner, in)
	if err != nil {
		return nil, nil, err
	}
	if !input.Save {
		return textResult(res)
	}
	saved, err := s.store.SaveAnalysis(ctx, res)
	if err != nil {
		return nil, nil, err
	}
	return textResult(savedOutput{ID: saved.ID, Analysis: res})
}

func (s *Server) handleBrainstorm(ctx context.Context, _ *sdkmcp.CallToolRequest, input brainstormInput) (*sdkmcp.CallToolResult, any, error) {
	s.logger.Info("%s: %s", ToolBrainstorm, strings.TrimSpace(input.CompanyName))
	res, err := brainstorm.Brainstorm(ctx, s.runner, brainstorm.Request{CompanyName: input.CompanyName})
	if err != nil {
		return nil, nil, err
	}
	return textResult(res)
}

func (s *Server) handleListAnalyses(ctx context.Context, _ *sdkmcp.CallToolRequest, input listInput) (*sdkmcp.CallToolResult, any, error) {
	if s.store == nil {
		return nil, nil, faults.MissingConfiguration("database.dsn")
	}
	if input.Limit < 0 {
		return nil, nil, faults.InvalidInput("limit must not be negative")
	}
	list, err := s.store.ListAnalyses(ctx, input.Limit)
	if err != nil {
		return nil, nil, err
	}
	return textResult(map[string]any{"analyses": list, "total": len(list)})
}

func (s *Server) handleExport(ctx context.Context, _ *sdkmcp.CallToolRequest, input exportInput) (*sdkmcp.CallToolResult, any, error) {
	if s.store == nil {
		return nil, nil, faults.MissingConfiguration("database.dsn")
	}
	format, err := export.ParseFormat(input.Format)
	if err != nil {
		return nil, nil, err
	}
	saved, err := s.store.GetAnalysis(ctx, input.ID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := export.Render(saved.Result(), format)
	if err != nil {
		return nil, nil, err
	}
	return textResult(exportOutput{
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Content:     strings.TrimPrefix(string(doc.Body), "\ufeff"),
	})
}

// textResult returns v as indented JSON text content.
func textResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
