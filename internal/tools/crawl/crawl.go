// Package crawl wraps a crawl4ai service for page crawling and feeds the
// crawled markdown into an external vector store through the VectorStore
// contract. The store itself lives outside this process.
package crawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
)

// Document is one chunk handed to the vector store.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Match is a scored document returned by a vector store query.
type Match struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// VectorStore is the contract for the external embedding store.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, docs []Document) error
	Query(ctx context.Context, collection string, text string, topK int) ([]Match, error)
}

// Config controls the crawl client.
type Config struct {
	APIURL   string
	APIToken string
	// Collection names the vector store collection crawled pages land in.
	Collection string
}

// Client talks to a crawl4ai HTTP service.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a crawl4ai client.
func NewClient(cfg Config) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// CrawlResult is the service's answer for one URL.
type CrawlResult struct {
	URL      string `json:"url"`
	Markdown string `json:"markdown"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Crawl fetches one URL through the crawl service.
func (c *Client) Crawl(ctx context.Context, target string) (*CrawlResult, error) {
	if c.config.APIURL == "" {
		return nil, fault.New(fault.InvalidInput, "crawl4ai api_url is not configured")
	}
	payload, err := json.Marshal(map[string]any{"urls": []string{target}})
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "encode crawl request")
	}

	endpoint := strings.TrimRight(c.config.APIURL, "/") + "/crawl"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "build crawl request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "crawl request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fault.New(fault.Internal, "crawl service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Results []CrawlResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "parse crawl response")
	}
	if len(decoded.Results) == 0 {
		return nil, fault.New(fault.Internal, "crawl service returned no results")
	}
	return &decoded.Results[0], nil
}

// chunkSize bounds document chunks handed to the vector store.
const chunkSize = 2000

// ChunkMarkdown splits markdown into store-sized documents.
func ChunkMarkdown(sourceURL, markdown string) []Document {
	text := strings.TrimSpace(markdown)
	if text == "" {
		return nil
	}
	var docs []Document
	for i := 0; len(text) > 0; i++ {
		chunk := text
		if len(chunk) > chunkSize {
			// Prefer a paragraph boundary inside the window.
			cut := strings.LastIndex(chunk[:chunkSize], "\n\n")
			if cut < chunkSize/2 {
				cut = chunkSize
			}
			chunk = chunk[:cut]
		}
		docs = append(docs, Document{
			ID:   fmt.Sprintf("%s#%d", sourceURL, i),
			Text: strings.TrimSpace(chunk),
			Metadata: map[string]string{
				"source": sourceURL,
			},
		})
		text = strings.TrimSpace(text[len(chunk):])
	}
	return docs
}

// Tool exposes crawling to agents and, when a store is attached, indexes
// the crawled page.
type Tool struct {
	client *Client
	store  VectorStore
}

// NewTool creates the crawl_page tool. store may be nil.
func NewTool(client *Client, store VectorStore) *Tool {
	return &Tool{client: client, store: store}
}

// Name returns the tool name.
func (t *Tool) Name() string {
	return "crawl_page"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	return "Crawl a web page to markdown via the crawl service, optionally indexing it for later retrieval."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http(s) URL to crawl.",
			},
			"index": map[string]any{
				"type":        "boolean",
				"description": "Index the crawled page in the vector store (default: false).",
			},
		},
		"required": []string{"url"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute crawls the URL and optionally indexes the result.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL   string `json:"url"`
		Index bool   `json:"index"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	target := strings.TrimSpace(input.URL)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return agent.ErrorResult("url must start with http:// or https://"), nil
	}

	result, err := t.client.Crawl(ctx, target)
	if err != nil {
		return agent.ErrorResult(err.Error()), nil
	}
	if !result.Success {
		message := result.Error
		if message == "" {
			message = "crawl failed"
		}
		return agent.ErrorResult(message), nil
	}

	indexed := 0
	if input.Index {
		if t.store == nil {
			return agent.ErrorResult("no vector store configured"), nil
		}
		docs := ChunkMarkdown(target, result.Markdown)
		if err := t.store.Upsert(ctx, t.client.config.Collection, docs); err != nil {
			return agent.ErrorResult(fmt.Sprintf("index page: %v", err)), nil
		}
		indexed = len(docs)
	}

	return agent.JSONResult(map[string]any{
		"url":      result.URL,
		"markdown": result.Markdown,
		"indexed":  indexed,
	}), nil
}
