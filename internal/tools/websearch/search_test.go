package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func searxngServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go slices", "url": "https://go.dev/blog/slices", "content": "usage and internals"},
				{"title": "Effective Go", "url": "https://go.dev/doc/effective_go", "content": "style guide"},
				{"title": "Spec", "url": "https://go.dev/ref/spec", "content": "language spec"},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSearchSearXNG(t *testing.T) {
	server := searxngServer(t, nil)
	tool := NewSearchTool(Config{SearXNGURL: server.URL})

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"go slices","result_count":2}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Content)
	}

	var response Response
	if err := json.Unmarshal([]byte(result.Content), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Backend != BackendSearXNG || response.ResultCount != 2 {
		t.Fatalf("response = %+v", response)
	}
	if response.Results[0].Title != "Go slices" {
		t.Fatalf("first result = %+v", response.Results[0])
	}
}

func TestSearchCachesResponses(t *testing.T) {
	var hits atomic.Int64
	server := searxngServer(t, &hits)
	tool := NewSearchTool(Config{SearXNGURL: server.URL, CacheTTL: 60})

	for i := 0; i < 3; i++ {
		if _, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"go slices"}`)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("backend hits = %d, want 1", got)
	}
}

func TestSearchFallsBackToDuckDuckGo(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"Heading":      "Go",
			"AbstractText": "Go is a programming language.",
			"AbstractURL":  "https://go.dev",
		})
	}))
	t.Cleanup(fallback.Close)

	saved := duckDuckGoAPI
	duckDuckGoAPI = fallback.URL + "/"
	t.Cleanup(func() { duckDuckGoAPI = saved })

	tool := NewSearchTool(Config{SearXNGURL: broken.URL})
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Content)
	}

	var response Response
	if err := json.Unmarshal([]byte(result.Content), &response); err != nil {
		t.Fatal(err)
	}
	if response.Backend != BackendDuckDuckGo || response.ResultCount != 1 {
		t.Fatalf("response = %+v", response)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	tool := NewSearchTool(Config{})
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"  "}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "query is required") {
		t.Fatalf("result = %+v", result)
	}
}
