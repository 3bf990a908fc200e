package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>Thermostat Manual</title>
  <style>body { color: red; }</style>
  <script>console.log("noise");</script>
</head>
<body>
  <h1>Thermostat   Manual</h1>
  <p>Set the target temperature &amp; press OK.</p>
</body>
</html>`

func TestFetchPageExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, samplePage)
	}))
	t.Cleanup(server.Close)

	tool := NewFetchTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Content)
	}

	var payload struct {
		Title     string `json:"title"`
		Text      string `json:"text"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if payload.Title != "Thermostat Manual" {
		t.Fatalf("title = %q", payload.Title)
	}
	if !strings.Contains(payload.Text, "Set the target temperature & press OK.") {
		t.Fatalf("text = %q", payload.Text)
	}
	if strings.Contains(payload.Text, "console.log") || strings.Contains(payload.Text, "color: red") {
		t.Fatalf("markup leaked into text: %q", payload.Text)
	}
	if payload.Truncated {
		t.Fatal("unexpected truncation")
	}
}

func TestFetchPageTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>", strings.Repeat("word ", 200), "</body></html>")
	}))
	t.Cleanup(server.Close)

	tool := NewFetchTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`","max_bytes":50}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var payload struct {
		Text      string `json:"text"`
		Truncated bool   `json:"truncated"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Text) != 50 || !payload.Truncated {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestFetchPageRejectsBadInput(t *testing.T) {
	tool := NewFetchTool()

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"ftp://example.com"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for non-http scheme")
	}
}

func TestFetchPageReportsStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	tool := NewFetchTool()
	result, err := tool.Execute(context.Background(), json.RawMessage(`{"url":"`+server.URL+`"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "status 404") {
		t.Fatalf("result = %+v", result)
	}
}
