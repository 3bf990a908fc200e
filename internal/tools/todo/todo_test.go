package todo

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hearthd/hearth/internal/observability"
)

func sessionCtx(id string) context.Context {
	return observability.AddSessionID(context.Background(), id)
}

func TestAddListCompleteRemove(t *testing.T) {
	tool := New(NewStore())
	ctx := sessionCtx("s1")

	result, err := tool.Execute(ctx, json.RawMessage(`{"action":"add","text":"water plants"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("add error result: %s", result.Content)
	}

	if _, err := tool.Execute(ctx, json.RawMessage(`{"action":"add","text":"check boiler"}`)); err != nil {
		t.Fatal(err)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"list"}`))
	var listing struct {
		Items []Item `json:"items"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Content), &listing); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if listing.Count != 2 || listing.Items[0].Text != "water plants" {
		t.Fatalf("listing = %+v", listing)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"complete","id":1}`))
	if result.IsError {
		t.Fatalf("complete error result: %s", result.Content)
	}
	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"list"}`))
	if err := json.Unmarshal([]byte(result.Content), &listing); err != nil {
		t.Fatal(err)
	}
	if !listing.Items[0].Done || listing.Items[1].Done {
		t.Fatalf("listing after complete = %+v", listing)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"remove","id":1}`))
	if result.IsError {
		t.Fatalf("remove error result: %s", result.Content)
	}
	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"list"}`))
	if err := json.Unmarshal([]byte(result.Content), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 1 || listing.Items[0].ID != 2 {
		t.Fatalf("listing after remove = %+v", listing)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	tool := New(NewStore())

	if _, err := tool.Execute(sessionCtx("s1"), json.RawMessage(`{"action":"add","text":"only in s1"}`)); err != nil {
		t.Fatal(err)
	}

	result, err := tool.Execute(sessionCtx("s2"), json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	var listing struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Content), &listing); err != nil {
		t.Fatal(err)
	}
	if listing.Count != 0 {
		t.Fatalf("s2 sees %d items", listing.Count)
	}
}

func TestUnknownIDAndAction(t *testing.T) {
	tool := New(NewStore())
	ctx := sessionCtx("s1")

	result, _ := tool.Execute(ctx, json.RawMessage(`{"action":"complete","id":99}`))
	if !result.IsError || !strings.Contains(result.Content, "no todo item") {
		t.Fatalf("result = %+v", result)
	}

	result, _ = tool.Execute(ctx, json.RawMessage(`{"action":"archive"}`))
	if !result.IsError {
		t.Fatal("expected error result for unknown action")
	}
}

func TestNoSessionInScope(t *testing.T) {
	tool := New(NewStore())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result without session scope")
	}
}
