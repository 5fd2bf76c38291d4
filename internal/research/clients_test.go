package research

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "acme widgets", req.Query)
		assert.Equal(t, 5, req.MaxResults)
		assert.Equal(t, "year", req.TimeRange)

		json.NewEncoder(w).Encode(tavilyResponse{Results: []SearchResult{
			{URL: "https://example.com/a", Title: "A", Content: "first"},
			{URL: "https://example.com/b", Title: "B", Content: "second"},
		}})
	}))
	defer srv.Close()

	c := NewTavilyClient("test-key")
	c.baseURL = srv.URL

	hits, err := c.Search(context.Background(), "acme widgets")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://example.com/a", hits[0].URL)
}

func TestTavilySearchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewTavilyClient("bad-key")
	c.baseURL = srv.URL

	_, err := c.Search(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestEdgarProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		json.NewEncoder(w).Encode(map[string]tickerEntry{
			"0": {CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
			"1": {CIK: 789019, Ticker: "MSFT", Title: "Microsoft Corp"},
		})
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"cik": "320193",
			"name": "Apple Inc.",
			"sic": "3571",
			"sicDescription": "Electronic Computers",
			"fiscalYearEnd": "0927",
			"tickers": ["AAPL"],
			"exchanges": ["Nasdaq"],
			"addresses": {"business": {"city": "Cupertino", "stateOrCountryDescription": "CA"}}
		}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewEdgarClient("factgraph test@example.com")
	c.tickersURL = srv.URL + "/files/company_tickers.json"
	c.submissionsURL = srv.URL + "/submissions/CIK%010d.json"

	profile, err := c.Profile(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", profile.CompanyName)
	assert.Equal(t, "AAPL", profile.Ticker)
	assert.Equal(t, "0000320193", profile.CIK)
	assert.Equal(t, "Electronic Computers", profile.Industry)
	assert.Equal(t, "Cupertino, CA", profile.Location)
	assert.Equal(t, []string{"Nasdaq"}, profile.Exchanges)
}

func TestEdgarProfileUnknownTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]tickerEntry{
			"0": {CIK: 320193, Ticker: "AAPL", Title: "Apple Inc."},
		})
	}))
	defer srv.Close()

	c := NewEdgarClient("factgraph test@example.com")
	c.tickersURL = srv.URL

	_, err := c.Profile(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ticker")
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.NotEmpty(t, req.System)
		require.Len(t, req.Messages, 1)

		fmt.Fprint(w, `{
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn"
		}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", "test-model")
	c.baseURL = srv.URL

	completion, err := c.Complete(context.Background(), systemPrompt, []Message{UserMessage("hi")}, researchTools())
	require.NoError(t, err)
	assert.Equal(t, "end_turn", completion.StopReason)
	require.Len(t, completion.Content, 1)
	assert.Equal(t, "hello", completion.Content[0].Text)
}

func TestAnthropicCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"type": "overloaded_error"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test-key", "")
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), "", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
