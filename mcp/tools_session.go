package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// registerSessionTools registers recorded-session tools
func (s *MCPServer) registerSessionTools() {
	// session_list - List recorded sessions
	s.server.AddTool(
		mcp.NewTool("session_list",
			mcp.WithDescription("List recorded logcat capture sessions, newest first"),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of sessions to return (default: 20)"),
			),
		),
		s.handleSessionList,
	)

	// session_query - Query entries of a recorded session
	s.server.AddTool(
		mcp.NewTool("session_query",
			mcp.WithDescription("Query log entries of a recorded session with optional level and substring filters"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session ID to query"),
			),
			mcp.WithString("level",
				mcp.Description("Filter by log level (V, D, I, W, E, F)"),
			),
			mcp.WithString("contains",
				mcp.Description("Only return entries containing this substring"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum entries to return (default: 100)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of entries to skip"),
			),
		),
		s.handleSessionQuery,
	)

	// session_export - Export a session to a file
	s.server.AddTool(
		mcp.NewTool("session_export",
			mcp.WithDescription("Export a recorded session to a gzipped JSONL archive"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session ID to export"),
			),
			mcp.WithString("output_path",
				mcp.Description("Output file path (a default name is derived when omitted)"),
			),
		),
		s.handleSessionExport,
	)

	// session_import - Import a previously exported session
	s.server.AddTool(
		mcp.NewTool("session_import",
			mcp.WithDescription("Import a session archive produced by session_export"),
			mcp.WithString("input_path",
				mcp.Required(),
				mcp.Description("Path to the archive file"),
			),
		),
		s.handleSessionImport,
	)

	// session_delete - Delete a recorded session
	s.server.AddTool(
		mcp.NewTool("session_delete",
			mcp.WithDescription("Delete a recorded session and all its entries"),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session ID to delete"),
			),
		),
		s.handleSessionDelete,
	)
}

func (s *MCPServer) handleSessionList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	limit := 20
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	sessions, err := s.app.ListSessions(limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent("No recorded sessions"),
			},
		}, nil
	}

	result := fmt.Sprintf("Found %d session(s):\n\n", len(sessions))
	for _, sess := range sessions {
		started := time.UnixMilli(sess.StartTime).Format("2006-01-02 15:04:05")
		result += fmt.Sprintf("- %s  %q  device=%s  started=%s  status=%s  entries=%d\n",
			sess.ID, sess.Name, sess.DeviceID, started, sess.Status, sess.EntryCount)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(result),
		},
	}, nil
}

func (s *MCPServer) handleSessionQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := SessionQuery{SessionID: sessionID, Limit: 100}
	if v, ok := args["level"].(string); ok {
		query.Level = strings.ToUpper(v)
	}
	if v, ok := args["contains"].(string); ok {
		query.Contains = v
	}
	if v, ok := args["limit"].(float64); ok && v > 0 {
		query.Limit = int(v)
	}
	if v, ok := args["offset"].(float64); ok && v > 0 {
		query.Offset = int(v)
	}

	result, err := s.app.QuerySession(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if len(result.Entries) == 0 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(fmt.Sprintf("No matching entries (total in session: %d)", result.Total)),
			},
		}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Showing %d of %d matching entries:\n\n", len(result.Entries), result.Total))
	for _, e := range result.Entries {
		sb.WriteString(e.Message)
		sb.WriteByte('\n')
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(sb.String()),
		},
	}, nil
}

func (s *MCPServer) handleSessionExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	outputPath, _ := args["output_path"].(string)

	path, err := s.app.ExportSession(sessionID, outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to export session: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Session %s exported to %s", sessionID, path)),
		},
	}, nil
}

func (s *MCPServer) handleSessionImport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	inputPath, ok := args["input_path"].(string)
	if !ok || inputPath == "" {
		return nil, fmt.Errorf("input_path is required")
	}

	newID, err := s.app.ImportSession(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to import session: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Session imported with ID %s", newID)),
		},
	}, nil
}

func (s *MCPServer) handleSessionDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, ok := args["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	if err := s.app.DeleteSession(sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf("Session %s deleted", sessionID)),
		},
	}, nil
}
