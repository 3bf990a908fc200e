package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/observability"
)

// Tool parameter limits to prevent resource exhaustion.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20

	// DefaultToolTimeout bounds a single tool execution.
	DefaultToolTimeout = 60 * time.Second
)

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry owns the canonical tool set. Registration compiles each tool's
// input schema once; Execute validates parameters against the compiled
// schema before the handler runs, enforces the per-tool deadline, and
// recovers handler panics.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]registeredTool
	timeout time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. A zero timeout selects
// DefaultToolTimeout.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]registeredTool),
		timeout: timeout,
		logger:  logger,
	}
}

// SetMetrics installs the execution metrics collector. A nil collector
// disables recording.
func (r *Registry) SetMetrics(metrics *observability.Metrics) {
	r.mu.Lock()
	r.metrics = metrics
	r.mu.Unlock()
}

// Register adds a tool, compiling its input schema. A tool name may only be
// registered once per registry.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fault.New(fault.InvalidInput, "tool is required")
	}
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fault.New(fault.InvalidInput, "invalid tool name %q", name)
	}
	schema, err := compileSchema(name, tool.Schema())
	if err != nil {
		return fault.Wrap(fault.InvalidInput, err, "tool %q has an invalid schema", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fault.New(fault.InvalidInput, "tool %q already registered", name)
	}
	r.tools[name] = registeredTool{tool: tool, schema: schema}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// Descriptors returns descriptors for all registered tools.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for _, entry := range r.tools {
		out = append(out, Describe(entry.tool))
	}
	return out
}

// Execute runs a tool by name with the given JSON parameters.
//
// Schema-invalid inputs never reach the handler; they produce an error
// result carrying the validation message. Handler deadlines and panics are
// likewise converted into error results so the turn can continue.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return ErrorResult(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(params) > MaxToolParamsSize {
		return ErrorResult(fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	r.mu.RLock()
	entry, ok := r.tools[name]
	timeout := r.timeout
	metrics := r.metrics
	r.mu.RUnlock()
	if !ok {
		return ErrorResult("tool not found: " + name), nil
	}

	if err := validateParams(entry.schema, params); err != nil {
		return ErrorResult("invalid tool input: " + err.Error()), nil
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.executeGuarded(execCtx, entry.tool, params)
	if err == nil && execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		r.logger.Warn("tool timed out", "tool", name, "timeout", timeout)
		result = ErrorResult(fmt.Sprintf("tool %s timed out after %s", name, timeout))
	}
	if metrics != nil {
		status := "success"
		if err != nil || result.IsError {
			status = "error"
		}
		metrics.ToolExecutionCounter.WithLabelValues(name, status).Inc()
		metrics.ToolExecutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// executeGuarded runs the handler in a goroutine so a blocking tool cannot
// outlive its deadline, and converts panics into error results.
func (r *Registry) executeGuarded(ctx context.Context, tool Tool, params json.RawMessage) (*ToolResult, error) {
	type outcome struct {
		result *ToolResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool panicked", "tool", tool.Name(), "panic", rec)
				done <- outcome{result: ErrorResult(fmt.Sprintf("tool %s panicked: %v", tool.Name(), rec))}
			}
		}()
		result, err := tool.Execute(ctx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return ErrorResult(out.err.Error()), nil
		}
		if out.result == nil {
			return &ToolResult{}, nil
		}
		return out.result, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("tool %s timed out", tool.Name())), nil
		}
		return nil, fault.Wrap(fault.Internal, ctx.Err(), "tool %s canceled", tool.Name())
	}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{"type":"object"}`)
	}
	return jsonschema.CompileString("tool_"+name, string(raw))
}

func validateParams(schema *jsonschema.Schema, params json.RawMessage) error {
	if schema == nil {
		return nil
	}
	var payload any
	if len(params) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(params, &payload); err != nil {
		return err
	}
	return schema.Validate(payload)
}
