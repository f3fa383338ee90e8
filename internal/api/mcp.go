package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/synthcerebrum/cerebro/internal/ingest"
	"github.com/synthcerebrum/cerebro/internal/query"
	"github.com/synthcerebrum/cerebro/internal/retrieval"
	"github.com/synthcerebrum/cerebro/internal/session"
)

// MCPRetriever abstracts semantic search for the MCP layer.
type MCPRetriever interface {
	Retrieve(ctx context.Context, knowledgeSet, q string, topK int) ([]retrieval.ScoredChunk, error)
}

// MCPAnswerer abstracts the query orchestrator for the MCP layer.
type MCPAnswerer interface {
	Answer(ctx context.Context, req query.Request) (query.Response, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Retriever MCPRetriever
	Answerer  MCPAnswerer
	Index     *retrieval.Index
	Pipeline  *ingest.Pipeline
	Sessions  *session.Store
}

// NewMCPServer creates an MCP server exposing the knowledge base and the
// query pipeline as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cerebro",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cerebro: local retrieval-augmented chat over your own documents."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("recall",
			mcp.WithDescription("Semantically search a knowledge set and return the most relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("knowledge_set", mcp.Description("Knowledge set to search (default: default)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecall(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Answer a question grounded in a knowledge set using the local model."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("knowledge_set", mcp.Description("Knowledge set to ground against (default: default)")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("list_knowledge_sets",
			mcp.WithDescription("List all knowledge sets with their chunk counts."),
		),
		mcpListSets(deps),
	)

	s.AddTool(
		mcp.NewTool("add_knowledge",
			mcp.WithDescription("Store a piece of text into a knowledge set for later retrieval."),
			mcp.WithString("text", mcp.Description("The text content to store"), mcp.Required()),
			mcp.WithString("knowledge_set", mcp.Description("Target knowledge set (default: default)")),
		),
		mcpAddKnowledge(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cerebro://sessions",
			"Chat Sessions",
			mcp.WithResourceDescription("Recent chat sessions (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		set := req.GetString("knowledge_set", "default")
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		chunks, err := deps.Retriever.Retrieve(ctx, set, q, limit)
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

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		set := req.GetString("knowledge_set", "default")

		resp, err := deps.Answerer.Answer(ctx, query.Request{
			Query:        q,
			KnowledgeSet: set,
			UseRAG:       true,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("answer failed: %v", err)), nil
		}
		return mcpText(resp.Text), nil
	}
}

func mcpListSets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sets, err := deps.Index.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list knowledge sets: %v", err)), nil
		}

		type setResult struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		}

		results := make([]setResult, 0, len(sets))
		for _, name := range sets {
			count, err := deps.Index.Count(name)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to count %q: %v", name, err)), nil
			}
			results = append(results, setResult{Name: name, Count: count})
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		set := req.GetString("knowledge_set", "default")

		name := fmt.Sprintf("note-%d.txt", time.Now().UnixMilli())
		var final ingest.Job
		jobs := deps.Pipeline.Ingest(ctx, []ingest.File{{Name: name, Data: []byte(text)}}, ingest.Options{KnowledgeSet: set})
		for job := range jobs {
			final = job
		}
		if final.Status == ingest.StatusError {
			return mcpError(fmt.Sprintf("failed to store: %s", final.Error)), nil
		}
		return mcpText(fmt.Sprintf("Stored %s into knowledge set %q", name, set)), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		summaries, err := deps.Sessions.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(summaries) > 10 {
			summaries = summaries[:10]
		}

		type sessionSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			UpdatedAt int64  `json:"updatedAt"`
		}

		out := make([]sessionSummary, len(summaries))
		for i, s := range summaries {
			title := s.Title
			if utf8.RuneCountInString(title) > 200 {
				runes := []rune(title)
				title = string(runes[:200]) + "..."
			}
			out[i] = sessionSummary{ID: s.ID, Title: title, UpdatedAt: s.UpdatedAt}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
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
