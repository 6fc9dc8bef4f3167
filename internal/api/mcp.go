package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/emothrive/emothrive/internal/pipeline"
	"github.com/emothrive/emothrive/internal/retrieval"
	"github.com/emothrive/emothrive/internal/therapy"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Chunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Pipeline     TurnProcessor
	Retriever    MCPRetriever
	Ingestor     Reindexer
	KnowledgeDir string
}

// NewMCPServer creates an MCP server with the conversational tools registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"emothrive",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("emothrive: therapeutic conversation assistant grounded in a clinical PDF knowledge base."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message to the therapeutic assistant and receive a supportive reply."),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Session to continue; omit to start a new one")),
			mcp.WithString("therapy_type", mcp.Description("Optional therapy type override (e.g. cbt, grief, anxiety)")),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search the clinical knowledge base and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("reindex",
			mcp.WithDescription("Rebuild the knowledge index from the configured PDF directory."),
		),
		mcpReindex(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"session://{id}",
			"Conversation Session",
			mcp.WithResourceDescription("Message history and counters for a session"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSession(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		result, err := deps.Pipeline.ProcessTurn(ctx, pipeline.TurnRequest{
			SessionID:   req.GetString("session_id", ""),
			Message:     message,
			TherapyType: therapy.Type(req.GetString("therapy_type", "")),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"session_id":   result.SessionID,
			"text":         result.Text,
			"therapy_type": string(result.TherapyType),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		type chunkResult struct {
			ID         string  `json:"id"`
			SourceFile string  `json:"source_file"`
			Text       string  `json:"text"`
			Score      float32 `json:"score"`
		}

		results := make([]chunkResult, len(chunks))
		for i, c := range chunks {
			results[i] = chunkResult{
				ID:         c.ID,
				SourceFile: c.SourceFile,
				Text:       c.Text,
				Score:      c.Score,
			}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReindex(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Ingestor.Reindex(ctx, deps.KnowledgeDir)
		if err != nil {
			return mcpError(fmt.Sprintf("reindex failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Indexed %d documents (%d chunks)", stats.Documents, stats.Chunks)), nil
	}
}

func mcpResourceSession(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := extractSessionID(req.Params.URI)
		sess := deps.Pipeline.Sessions().Get(id)
		if sess == nil {
			return nil, fmt.Errorf("session %s not found", id)
		}

		counts := make(map[string]int)
		for typ, n := range sess.TypeCounts() {
			counts[string(typ)] = n
		}
		b, err := json.Marshal(map[string]any{
			"id":                 sess.ID,
			"started_at":         sess.StartedAt.Format(time.RFC3339),
			"turns":              sess.Turns(),
			"therapy_types_used": counts,
			"messages":           sess.Messages(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
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

// extractSessionID pulls the ID out of a session://{id} URI.
func extractSessionID(uri string) string {
	const prefix = "session://"
	if len(uri) > len(prefix) && uri[:len(prefix)] == prefix {
		return uri[len(prefix):]
	}
	return uri
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
