// Package api exposes the chat client's operations as MCP tools so an agent
// can drive a document chat session.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/docchat/internal/chat"
	"github.com/kalambet/docchat/internal/documents"
	"github.com/kalambet/docchat/internal/search"
	"github.com/kalambet/docchat/internal/storage"
)

const historyLimit = 20

// MCPChat runs chat turns.
type MCPChat interface {
	Submit(ctx context.Context, text string) (*chat.Turn, error)
	SetDocumentMode(on bool)
}

// MCPDocuments lists and deletes the session's documents.
type MCPDocuments interface {
	Refresh(ctx context.Context) ([]documents.Document, error)
	Remove(ctx context.Context, documentID string) error
}

// MCPUploader uploads files.
type MCPUploader interface {
	UploadBatch(ctx context.Context, files []documents.File) (documents.Summary, error)
}

// MCPSearcher runs semantic searches.
type MCPSearcher interface {
	Search(ctx context.Context, query string, limit int) (search.ResultSet, error)
}

// MCPHistory reads recorded turns.
type MCPHistory interface {
	RecentTurns(sessionID string, limit int) ([]storage.TurnRecord, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	SessionID string
	Chat      MCPChat
	Documents MCPDocuments
	Uploader  MCPUploader
	Search    MCPSearcher
	History   MCPHistory // optional; if nil, the history resource is empty
}

// NewMCPServer creates an MCP server with all docchat tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"docchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("docchat: chat with an assistant grounded in the documents uploaded to this session."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a chat message and return the complete reply."),
			mcp.WithString("message", mcp.Description("The message to send"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("search_documents",
			mcp.WithDescription("Semantically search the uploaded documents and return matching sections."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5, at most 50)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_documents",
			mcp.WithDescription("List the documents uploaded to this session."),
		),
		mcpListDocuments(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_document",
			mcp.WithDescription("Delete an uploaded document."),
			mcp.WithString("document_id", mcp.Description("ID from list_documents"), mcp.Required()),
		),
		mcpDeleteDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("upload_document",
			mcp.WithDescription("Upload a local file (txt, pdf, docx, md) so it can be searched and used in answers."),
			mcp.WithString("path", mcp.Description("Path of the file to upload"), mcp.Required()),
		),
		mcpUploadDocument(deps),
	)

	s.AddTool(
		mcp.NewTool("set_document_mode",
			mcp.WithDescription("Choose whether answers use the uploaded documents or general knowledge."),
			mcp.WithBoolean("enabled", mcp.Description("true to answer from documents"), mcp.Required()),
		),
		mcpSetDocumentMode(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://history",
			"Chat History",
			mcp.WithResourceDescription("Last 20 recorded turns of this session"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		turn, err := deps.Chat.Submit(ctx, message)
		if errors.Is(err, chat.ErrEmptyMessage) {
			return mcpError("message is required"), nil
		}
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if turn.Status == chat.Failed {
			return mcpError("Error: " + turn.Err.Error()), nil
		}
		return mcpText(turn.Reply), nil
	}
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		rs, err := deps.Search.Search(ctx, query, req.GetInt("limit", 0))
		if errors.Is(err, search.ErrEmptyQuery) {
			return mcpError("query is required"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type resultJSON struct {
			Filename   string `json:"filename"`
			Content    string `json:"content"`
			Similarity int    `json:"similarity_percent"`
		}
		results := make([]resultJSON, len(rs.Results))
		for i, r := range rs.Results {
			results[i] = resultJSON{Filename: r.Filename, Content: r.Content, Similarity: search.Percent(r.Similarity)}
		}
		return mcpJSON(results)
	}
}

func mcpListDocuments(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		docs, err := deps.Documents.Refresh(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing documents failed: %v", err)), nil
		}
		return mcpJSON(docs)
	}
}

func mcpDeleteDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("document_id")
		if err != nil {
			return mcpError("document_id is required"), nil
		}
		if err := deps.Documents.Remove(ctx, id); err != nil {
			return mcpError("Error: " + err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Deleted document %s", id)), nil
	}
}

func mcpUploadDocument(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcpError("path is required"), nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return mcpError(fmt.Sprintf("reading %s: %v", path, err)), nil
		}

		name := filepath.Base(path)
		summary, err := deps.Uploader.UploadBatch(ctx, []documents.File{{Name: name, Content: content}})
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if summary.Succeeded == 0 {
			reason := "unknown error"
			if len(summary.Failures) > 0 {
				reason = summary.Failures[0].Err.Error()
			}
			return mcpError(fmt.Sprintf("Failed to upload %s: %s", name, reason)), nil
		}
		return mcpText(fmt.Sprintf("Uploaded %s", name)), nil
	}
}

func mcpSetDocumentMode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		enabled, err := req.RequireBool("enabled")
		if err != nil {
			return mcpError("enabled is required"), nil
		}
		deps.Chat.SetDocumentMode(enabled)
		if enabled {
			return mcpText("Document mode enabled"), nil
		}
		return mcpText("Document mode disabled"), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		type turnSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Message   string `json:"message"`
			Reply     string `json:"reply,omitempty"`
			Status    string `json:"status"`
			Error     string `json:"error,omitempty"`
		}

		summaries := []turnSummary{}
		if deps.History != nil {
			turns, err := deps.History.RecentTurns(deps.SessionID, historyLimit)
			if err != nil {
				return nil, fmt.Errorf("failed to get recent turns: %w", err)
			}
			for _, t := range turns {
				summaries = append(summaries, turnSummary{
					ID:        t.ID,
					CreatedAt: t.CreatedAt.Format(time.RFC3339),
					Message:   truncate(t.UserText, 200),
					Reply:     truncate(t.Reply, 200),
					Status:    t.Status,
					Error:     t.Error,
				})
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal turns: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
