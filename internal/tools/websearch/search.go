// Package websearch gives agents read access to the web: a search tool
// backed by a SearXNG instance with a DuckDuckGo fallback, and a page
// fetch tool that reduces HTML to readable text.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hearthd/hearth/internal/agent"
)

// Backend identifies a search backend.
type Backend string

const (
	BackendSearXNG    Backend = "searxng"
	BackendDuckDuckGo Backend = "duckduckgo"

	// maxCacheSize caps cached responses to bound memory.
	maxCacheSize = 1000

	maxResultCount = 20
)

// duckDuckGoAPI is a variable so tests can point it at a local server.
var duckDuckGoAPI = "https://api.duckduckgo.com/"

// Config controls the search tool.
type Config struct {
	// SearXNGURL is the base URL of a SearXNG instance. When empty the
	// tool queries DuckDuckGo's instant answer API directly.
	SearXNGURL string `json:"searxng_url,omitempty"`

	// DefaultResultCount is used when the call does not ask for a count.
	DefaultResultCount int `json:"default_result_count"`

	// CacheTTL is the cache lifetime in seconds.
	CacheTTL int `json:"cache_ttl"`
}

// Result is a single search hit.
type Result struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Response is the full answer for one query.
type Response struct {
	Query       string   `json:"query"`
	Results     []Result `json:"results"`
	ResultCount int      `json:"result_count"`
	Backend     Backend  `json:"backend"`
}

type cacheEntry struct {
	response  *Response
	expiresAt time.Time
}

// SearchTool implements web search over the configured backend.
type SearchTool struct {
	config     Config
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry
}

// NewSearchTool creates the web_search tool.
func NewSearchTool(cfg Config) *SearchTool {
	if cfg.DefaultResultCount <= 0 {
		cfg.DefaultResultCount = 5
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 300
	}
	return &SearchTool{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string]*cacheEntry),
	}
}

// Name returns the tool name.
func (t *SearchTool) Name() string {
	return "web_search"
}

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search the web and return titles, URLs, and snippets."
}

// Schema returns the JSON schema for the tool parameters.
func (t *SearchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query.",
			},
			"result_count": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5, max: 20).",
				"minimum":     1,
				"maximum":     maxResultCount,
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute answers from cache when fresh, otherwise queries the backend.
// When SearXNG fails the tool falls back to DuckDuckGo.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query       string `json:"query"`
		ResultCount int    `json:"result_count"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return agent.ErrorResult("query is required"), nil
	}
	count := input.ResultCount
	if count <= 0 {
		count = t.config.DefaultResultCount
	}
	if count > maxResultCount {
		count = maxResultCount
	}

	cacheKey := fmt.Sprintf("%d:%s", count, query)
	if cached := t.fromCache(cacheKey); cached != nil {
		return agent.JSONResult(cached), nil
	}

	var response *Response
	var err error
	if t.config.SearXNGURL != "" {
		response, err = t.searchSearXNG(ctx, query, count)
		if err != nil {
			response, err = t.searchDuckDuckGo(ctx, query, count)
		}
	} else {
		response, err = t.searchDuckDuckGo(ctx, query, count)
	}
	if err != nil {
		return agent.ErrorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	t.store(cacheKey, response)
	return agent.JSONResult(response), nil
}

func (t *SearchTool) fromCache(key string) *Response {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	entry, ok := t.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (t *SearchTool) store(key string, response *Response) {
	t.cacheMu.Lock()
	defer t.cacheMu.Unlock()

	now := time.Now()
	for k, v := range t.cache {
		if now.After(v.expiresAt) {
			delete(t.cache, k)
		}
	}
	for len(t.cache) >= maxCacheSize {
		var oldestKey string
		var oldestTime time.Time
		for k, v := range t.cache {
			if oldestKey == "" || v.expiresAt.Before(oldestTime) {
				oldestKey = k
				oldestTime = v.expiresAt
			}
		}
		delete(t.cache, oldestKey)
	}
	t.cache[key] = &cacheEntry{
		response:  response,
		expiresAt: now.Add(time.Duration(t.config.CacheTTL) * time.Second),
	}
}

func (t *SearchTool) searchSearXNG(ctx context.Context, query string, count int) (*Response, error) {
	base, err := url.Parse(t.config.SearXNGURL)
	if err != nil {
		return nil, fmt.Errorf("invalid searxng url: %w", err)
	}
	base.Path = "/search"
	values := url.Values{}
	values.Set("q", query)
	values.Set("format", "json")
	values.Set("pageno", "1")
	values.Set("categories", "general")
	base.RawQuery = values.Encode()

	body, err := t.get(ctx, base.String(), nil)
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Results []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Content       string `json:"content"`
			PublishedDate string `json:"publishedDate,omitempty"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse searxng response: %w", err)
	}

	results := make([]Result, 0, count)
	for _, r := range decoded.Results {
		if len(results) >= count {
			break
		}
		results = append(results, Result{
			Title:       r.Title,
			URL:         r.URL,
			Snippet:     r.Content,
			PublishedAt: r.PublishedDate,
		})
	}
	return &Response{Query: query, Results: results, ResultCount: len(results), Backend: BackendSearXNG}, nil
}

func (t *SearchTool) searchDuckDuckGo(ctx context.Context, query string, count int) (*Response, error) {
	endpoint := fmt.Sprintf("%s?q=%s&format=json&no_html=1", duckDuckGoAPI, url.QueryEscape(query))
	body, err := t.get(ctx, endpoint, map[string]string{
		"User-Agent": "Mozilla/5.0 (compatible; HearthBot/1.0)",
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		AbstractText  string `json:"AbstractText"`
		AbstractURL   string `json:"AbstractURL"`
		Heading       string `json:"Heading"`
		RelatedTopics []struct {
			FirstURL string `json:"FirstURL"`
			Text     string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("parse duckduckgo response: %w", err)
	}

	results := make([]Result, 0, count)
	if decoded.AbstractText != "" && decoded.AbstractURL != "" {
		results = append(results, Result{
			Title:   decoded.Heading,
			URL:     decoded.AbstractURL,
			Snippet: decoded.AbstractText,
		})
	}
	for _, topic := range decoded.RelatedTopics {
		if len(results) >= count {
			break
		}
		if topic.FirstURL == "" || topic.Text == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, Result{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	return &Response{Query: query, Results: results, ResultCount: len(results), Backend: BackendDuckDuckGo}, nil
}

func (t *SearchTool) get(ctx context.Context, endpoint string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
