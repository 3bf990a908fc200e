package agent

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool " + f.name }

func (f *fakeTool) Schema() json.RawMessage {
	if f.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(f.schema)
}

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	if f.execute != nil {
		return f.execute(ctx, params)
	}
	return &ToolResult{Content: "ok"}, nil
}

func TestNewAgentValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Name: "scout", Model: "m"}, false},
		{"uppercase", Config{Name: "Scout"}, true},
		{"empty", Config{Name: ""}, true},
		{"leading digit", Config{Name: "1agent"}, true},
		{"underscore ok", Config{Name: "main_agent"}, false},
		{"duplicate tools", Config{Name: "a", Tools: []Tool{
			&fakeTool{name: "t"}, &fakeTool{name: "t"},
		}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("New(%q) error = %v, wantErr %v", tc.cfg.Name, err, tc.wantErr)
			}
		})
	}
}

func TestAgentImmutableAccessors(t *testing.T) {
	a, err := New(Config{
		Name:             "main",
		Model:            "gpt-4o",
		AllowedTransfers: []string{"scout"},
		Tools:            []Tool{&fakeTool{name: "t"}},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	transfers := a.AllowedTransfers()
	transfers[0] = "mutated"
	if a.AllowedTransfers()[0] != "scout" {
		t.Fatal("AllowedTransfers must return a copy")
	}

	tools := a.Tools()
	tools[0] = nil
	if a.Tools()[0] == nil {
		t.Fatal("Tools must return a copy")
	}
}
