package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const tavilyAPIURL = "https://api.tavily.com/search"

// TavilyClient performs web searches through the Tavily REST API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewTavilyClient creates a new Tavily search client.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    tavilyAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SearchResult is one web search hit.
type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	TimeRange   string `json:"time_range,omitempty"`
	SearchDepth string `json:"search_depth,omitempty"`
}

type tavilyResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs one query and returns up to five recent results.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	reqBody := tavilyRequest{
		Query:       query,
		MaxResults:  5,
		TimeRange:   "year",
		SearchDepth: "basic",
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("search API error %d: %s", resp.StatusCode, string(body))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return out.Results, nil
}
