package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeStore struct {
	collection string
	docs       []Document
	fail       bool
}

func (s *fakeStore) Upsert(_ context.Context, collection string, docs []Document) error {
	if s.fail {
		return context.DeadlineExceeded
	}
	s.collection = collection
	s.docs = append(s.docs, docs...)
	return nil
}

func (s *fakeStore) Query(context.Context, string, string, int) ([]Match, error) {
	return nil, nil
}

func crawlServer(t *testing.T, markdown string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crawl" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer crawl-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req struct {
			URLs []string `json:"urls"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.URLs) != 1 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"url": req.URLs[0], "markdown": markdown, "success": true},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCrawlPage(t *testing.T) {
	server := crawlServer(t, "# Heating\n\nBleed the radiators once a year.")
	client := NewClient(Config{APIURL: server.URL, APIToken: "crawl-token"})
	tool := NewTool(client, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com/heating"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Content)
	}

	var payload struct {
		Markdown string `json:"markdown"`
		Indexed  int    `json:"indexed"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !strings.Contains(payload.Markdown, "Bleed the radiators") || payload.Indexed != 0 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCrawlPageIndexes(t *testing.T) {
	server := crawlServer(t, strings.Repeat("paragraph about heat pumps\n\n", 200))
	client := NewClient(Config{APIURL: server.URL, APIToken: "crawl-token", Collection: "pages"})
	store := &fakeStore{}
	tool := NewTool(client, store)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com/hp","index":true}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Content)
	}
	if store.collection != "pages" || len(store.docs) < 2 {
		t.Fatalf("store = %+v", store)
	}
	for _, doc := range store.docs {
		if len(doc.Text) > chunkSize {
			t.Fatalf("chunk exceeds limit: %d", len(doc.Text))
		}
		if doc.Metadata["source"] != "https://example.com/hp" {
			t.Fatalf("metadata = %+v", doc.Metadata)
		}
	}
}

func TestCrawlPageIndexWithoutStore(t *testing.T) {
	server := crawlServer(t, "content")
	client := NewClient(Config{APIURL: server.URL, APIToken: "crawl-token"})
	tool := NewTool(client, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com","index":true}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "no vector store") {
		t.Fatalf("result = %+v", result)
	}
}

func TestCrawlServiceFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	client := NewClient(Config{APIURL: server.URL})
	tool := NewTool(client, nil)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"https://example.com"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "status 500") {
		t.Fatalf("result = %+v", result)
	}
}

func TestChunkMarkdownBoundaries(t *testing.T) {
	docs := ChunkMarkdown("https://example.com", "")
	if docs != nil {
		t.Fatalf("docs = %+v", docs)
	}

	docs = ChunkMarkdown("https://example.com", "short page")
	if len(docs) != 1 || docs[0].ID != "https://example.com#0" {
		t.Fatalf("docs = %+v", docs)
	}
}
