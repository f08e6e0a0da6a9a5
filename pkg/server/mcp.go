package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/research-assistant/pkg/ingest"
	"github.com/mikeboe/research-assistant/pkg/research"
)

type SearchPapersInput struct {
	Query  string `json:"query" jsonschema:"the search query"`
	Source string `json:"source,omitempty" jsonschema:"optional source URL or file name to restrict the search to"`
}

type SearchPapersOutput struct {
	Results string `json:"results"`
}

type FindSourceInput struct {
	Source string `json:"source" jsonschema:"the source URL or file name of a paper"`
}

type FindMetadataInput struct {
	Filter map[string]any `json:"filter" jsonschema:"JSON filter object on chunk metadata, with logical operators $and, $or and $not"`
}

type ContentOutput struct {
	Content string `json:"content"`
}

type QueryInput struct {
	Query string `json:"query" jsonschema:"the research question or arXiv search phrase"`
}

func (h *Handler) newMCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "research-assistant-mcp", Version: "1.0.0"}, nil)

	if h.Papers != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "search_papers",
			Description: "Search the content of the indexed research papers using semantic search.",
		}, h.mcpSearchPapers)
		mcp.AddTool(server, &mcp.Tool{
			Name:        "find_content_by_source",
			Description: "Return the full indexed text of one paper.",
		}, h.mcpFindContentBySource)
		mcp.AddTool(server, &mcp.Tool{
			Name:        "find_content_by_metadata",
			Description: "Find indexed chunks using logical filters on their metadata (source, title, authors, chunk).",
		}, h.mcpFindContentByMetadata)
	}
	if h.Ingester != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "ingest_topic",
			Description: "Search arXiv for a topic and index the matching papers.",
		}, h.mcpIngestTopic)
	}
	if h.Research != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "answer_query",
			Description: "Answer a research question from the indexed papers, falling back to web and Wikipedia search.",
		}, h.mcpAnswerQuery)
	}

	return server
}

func (h *Handler) mcpSearchPapers(ctx context.Context, _ *mcp.CallToolRequest, in SearchPapersInput) (*mcp.CallToolResult, SearchPapersOutput, error) {
	h.Logger.Info("MCP search_papers", "query", in.Query, "source", in.Source)
	results, err := h.Papers.SearchFormatted(ctx, in.Query, in.Source)
	if err != nil {
		return nil, SearchPapersOutput{}, err
	}
	return textResult(results), SearchPapersOutput{Results: results}, nil
}

func (h *Handler) mcpFindContentBySource(ctx context.Context, _ *mcp.CallToolRequest, in FindSourceInput) (*mcp.CallToolResult, ContentOutput, error) {
	content, err := h.Papers.ContentBySource(ctx, in.Source)
	if err != nil {
		return nil, ContentOutput{}, err
	}
	return textResult(content), ContentOutput{Content: content}, nil
}

func (h *Handler) mcpFindContentByMetadata(ctx context.Context, _ *mcp.CallToolRequest, in FindMetadataInput) (*mcp.CallToolResult, ContentOutput, error) {
	content, err := h.Papers.ContentByMetadata(ctx, in.Filter)
	if err != nil {
		return nil, ContentOutput{}, err
	}
	return textResult(content), ContentOutput{Content: content}, nil
}

func (h *Handler) mcpIngestTopic(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, ingest.Result, error) {
	h.Logger.Info("MCP ingest_topic", "query", in.Query)
	res, err := h.Ingester.IngestTopic(ctx, in.Query)
	if err != nil {
		return nil, ingest.Result{}, err
	}
	text := fmt.Sprintf("Indexed %d chunks from %d paper(s): %d ingested, %d skipped, %d failed.",
		res.TotalChunks, len(res.Papers), res.Count(ingest.StatusIngested),
		res.Count(ingest.StatusSkipped), res.Count(ingest.StatusFailed))
	return textResult(text), *res, nil
}

func (h *Handler) mcpAnswerQuery(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, research.ResearchResponse, error) {
	h.Logger.Info("MCP answer_query", "query", in.Query)
	resp, err := h.Research.AnswerQuery(ctx, in.Query)
	if err != nil {
		return nil, research.ResearchResponse{}, err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, research.ResearchResponse{}, err
	}
	return textResult(string(data)), *resp, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
