package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hearthd/hearth/internal/agent"
)

// ListTool lists directory entries inside the workspace.
type ListTool struct {
	resolver   Resolver
	maxEntries int
}

// NewListTool creates a directory listing tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{
		resolver:   Resolver{Root: cfg.Workspace},
		maxEntries: 500,
	}
}

// Name returns the tool name.
func (t *ListTool) Name() string {
	return "list_directory"
}

// Description returns the tool description.
func (t *ListTool) Description() string {
	return "List the entries of a workspace directory, sorted by name."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ListTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list (relative to workspace, default: workspace root).",
			},
		},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Execute lists directory entries.
func (t *ListTool) Execute(_ context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
		}
	}
	path := strings.TrimSpace(input.Path)
	if path == "" {
		path = "."
	}

	resolved, err := t.resolver.Resolve(path)
	if err != nil {
		return agent.ErrorResult(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return agent.ErrorResult(fmt.Sprintf("read directory: %v", err)), nil
	}

	type listEntry struct {
		Name  string `json:"name"`
		IsDir bool   `json:"is_dir"`
		Size  int64  `json:"size,omitempty"`
	}
	listed := make([]listEntry, 0, len(entries))
	truncated := false
	for _, entry := range entries {
		if len(listed) >= t.maxEntries {
			truncated = true
			break
		}
		item := listEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item.Size = info.Size()
		}
		listed = append(listed, item)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	return agent.JSONResult(map[string]any{
		"path":      path,
		"entries":   listed,
		"truncated": truncated,
	}), nil
}
