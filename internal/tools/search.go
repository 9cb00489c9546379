package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/proto"
)

// SearchToolName is the name the model calls the web search tool by.
const SearchToolName = "search"

const maxErrorBody = 512

// Search queries the Tavily search API.
type Search struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
}

// NewSearch builds the search tool. A nil client uses one with cfg.Timeout.
func NewSearch(cfg config.Search, client *http.Client) *Search {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Search{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxResults: maxResults,
		client:     client,
	}
}

// Definition implements Tool.
func (s *Search) Definition() proto.ToolDefinition {
	return proto.ToolDefinition{
		Name:        SearchToolName,
		Description: "Search the web for current information. Returns the most relevant results with their URLs and content.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
			},
			"required": []string{"query"},
		},
	}
}

type searchArgs struct {
	Query string `json:"query"`
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
	IncludeAns  bool   `json:"include_answer"`
}

// SearchResult is one hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchResponse is the tool output, serialized as JSON.
type SearchResponse struct {
	Query   string         `json:"query"`
	Answer  string         `json:"answer,omitempty"`
	Results []SearchResult `json:"results"`
}

// Invoke implements Tool.
func (s *Search) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in searchArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return "", fmt.Errorf("invalid search arguments: %w", err)
		}
	}
	in.Query = strings.TrimSpace(in.Query)
	if in.Query == "" {
		return "", errors.New("search query is empty")
	}
	if s.apiKey == "" {
		return "", errors.New("search is not configured: TAVILY_API_KEY is not set")
	}

	body, err := json.Marshal(searchRequest{
		Query:       in.Query,
		MaxResults:  s.maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return "", fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bts, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("search API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bts)))
	}

	var out SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if out.Query == "" {
		out.Query = in.Query
	}
	if out.Results == nil {
		out.Results = []SearchResult{}
	}

	bts, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode search results: %w", err)
	}
	return string(bts), nil
}
