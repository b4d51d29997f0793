package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/config"
	"advisor/pkg/persistence"
	"advisor/pkg/pipeline"
	"advisor/pkg/testkit"
)

func newTestServer(t *testing.T, withStore bool) (*Server, *persistence.Store) {
	t.Helper()
	replies := testkit.AnalysisReplies()
	for stage, reply := range testkit.BrainstormReplies() {
		replies[stage] = reply
	}
	orch := pipeline.NewOrchestrator(testkit.NewStageInvoker(replies), config.Default())

	var store *persistence.Store
	if withStore {
		var err error
		store, err = persistence.Open(context.Background(), config.DatabaseConfig{
			Driver: persistence.DriverSQLite,
			DSN:    filepath.Join(t.TempDir(), "advisor.db"),
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}
	return NewServer(orch, store), store
}

func connectInMemory(t *testing.T, ctx context.Context, srv *Server) *sdkmcp.ClientSession {
	t.Helper()
	t1, t2 := sdkmcp.NewInMemoryTransports()
	_, err := srv.MCPServer.Connect(ctx, t1, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in tool result")
	return ""
}

func callTool(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) map[string]any {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "%s returned error: %s", name, toolText(t, res))

	result := make(map[string]any)
	require.NoError(t, json.Unmarshal([]byte(toolText(t, res)), &result))
	return result
}

func callToolExpectError(t *testing.T, ctx context.Context, session *sdkmcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err.Error()
	}
	require.True(t, res.IsError, "expected %s to fail", name)
	return toolText(t, res)
}

func TestToolDiscovery(t *testing.T) {
	srv, _ := newTestServer(t, true)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolAnalyze, ToolBrainstorm, ToolListAnalyses, ToolExportAnalysis}, names)
}

func TestAnalyzeSaveListExport(t *testing.T) {
	srv, store := newTestServer(t, true)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	out := callTool(t, ctx, session, ToolAnalyze, map[string]any{
		"companyName": "Acme AB",
		"companyType": "sme",
		"industry":    "retail",
		"save":        true,
	})
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	analysisOut, ok := out["analysis"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, analysisOut["suggestions"], testkit.AnalysisSuggestions)

	saved, err := store.GetAnalysis(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme AB", saved.CompanyName)

	list := callTool(t, ctx, session, ToolListAnalyses, map[string]any{})
	assert.EqualValues(t, 1, list["total"])

	exported := callTool(t, ctx, session, ToolExportAnalysis, map[string]any{"id": id, "format": "excel"})
	assert.Equal(t, "CSA_AI_Analys_Acme AB.csv", exported["filename"])
	content, _ := exported["content"].(string)
	assert.True(t, strings.HasPrefix(content, "CSA AI ADVISOR"), "BOM stripped from text content")
}

func TestAnalyzeWithoutSave(t *testing.T) {
	srv, _ := newTestServer(t, false)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	out := callTool(t, ctx, session, ToolAnalyze, map[string]any{"companyName": "Acme AB"})
	company, ok := out["company"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Acme AB", company["companyName"])

	msg := callToolExpectError(t, ctx, session, ToolAnalyze, map[string]any{"companyName": "Acme AB", "save": true})
	assert.Contains(t, msg, "database.dsn")

	msg = callToolExpectError(t, ctx, session, ToolListAnalyses, map[string]any{})
	assert.Contains(t, msg, "database.dsn")
}

func TestBrainstormTool(t *testing.T) {
	srv, _ := newTestServer(t, false)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	out := callTool(t, ctx, session, ToolBrainstorm, map[string]any{"companyName": "Acme AB"})
	assert.Len(t, out["ideas"], testkit.BrainstormIdeas)
	assert.Len(t, out["topIdeas"], testkit.BrainstormTopIdeas)

	msg := callToolExpectError(t, ctx, session, ToolBrainstorm, map[string]any{"companyName": "   "})
	assert.Contains(t, msg, "companyName is required")
}

func TestExportErrors(t *testing.T) {
	srv, _ := newTestServer(t, true)
	ctx := context.Background()
	session := connectInMemory(t, ctx, srv)

	msg := callToolExpectError(t, ctx, session, ToolExportAnalysis, map[string]any{"id": "saknas"})
	assert.Contains(t, msg, "not found")

	msg = callToolExpectError(t, ctx, session, ToolExportAnalysis, map[string]any{"id": "saknas", "format": "docx"})
	assert.Contains(t, msg, "unknown export format")
}
