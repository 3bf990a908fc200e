package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hearthd/hearth/internal/agent"
)

const defaultFetchLimit = 100_000

var (
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// FetchTool downloads a page and reduces it to readable text.
type FetchTool struct {
	httpClient *http.Client
	maxBytes   int
}

// NewFetchTool creates the fetch_page tool.
func NewFetchTool() *FetchTool {
	return &FetchTool{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxBytes:   defaultFetchLimit,
	}
}

// Name returns the tool name.
func (t *FetchTool) Name() string {
	return "fetch_page"
}

// Description returns the tool description.
func (t *FetchTool) Description() string {
	return "Fetch a web page and return its title and extracted text content."
}

// Schema returns the JSON schema for the tool parameters.
func (t *FetchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http(s) URL to fetch.",
			},
			"max_bytes": map[string]any{
				"type":        "integer",
				"description": "Maximum bytes of extracted text to return.",
				"minimum":     1,
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

// Execute fetches the URL and extracts text.
func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		URL      string `json:"url"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	target := strings.TrimSpace(input.URL)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return agent.ErrorResult("url must start with http:// or https://"), nil
	}
	limit := t.maxBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return agent.ErrorResult(fmt.Sprintf("build request: %v", err)), nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; HearthBot/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return agent.ErrorResult(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return agent.ErrorResult(fmt.Sprintf("page returned status %d", resp.StatusCode)), nil
	}

	// Read past the limit by one byte to detect truncation.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)*4))
	if err != nil {
		return agent.ErrorResult(fmt.Sprintf("read page: %v", err)), nil
	}

	title := ""
	if m := titlePattern.FindSubmatch(raw); m != nil {
		title = strings.TrimSpace(string(m[1]))
	}
	text := extractText(string(raw))
	truncated := false
	if len(text) > limit {
		text = text[:limit]
		truncated = true
	}

	return agent.JSONResult(map[string]any{
		"url":       target,
		"title":     title,
		"text":      text,
		"truncated": truncated,
	}), nil
}

// extractText strips markup and collapses whitespace.
func extractText(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, "\n")
	text = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(text)
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	text = strings.Join(cleaned, "\n")
	return blankPattern.ReplaceAllString(text, "\n\n")
}
