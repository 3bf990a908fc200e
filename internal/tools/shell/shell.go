// Package shell exposes command execution to agents. The execution mode is
// fixed at construction: strict mode admits only allow-listed executables
// and rejects violations before any process is spawned.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
)

// Mode selects the security posture of the shell tool.
type Mode string

const (
	// ModeStrict admits only executables named in the allow-list.
	ModeStrict Mode = "strict"
	// ModePermissive admits any safe executable value.
	ModePermissive Mode = "permissive"
)

// Config controls the shell tool. Mode and allow-list are recorded at
// construction and cannot be changed through tool input.
type Config struct {
	Mode           Mode
	Allow          []string
	WorkDir        string
	MaxOutputBytes int
}

var (
	// shellMetachars matches characters that could enable command injection.
	shellMetachars = regexp.MustCompile("[;&|`$<>\"'\\r\\n]")

	// bareNamePattern matches safe bare executable names.
	bareNamePattern = regexp.MustCompile(`^[A-Za-z0-9._+/-]+$`)
)

// Tool runs a single executable with arguments. There is no shell
// interpolation; metacharacters in the executable value are rejected.
type Tool struct {
	mode      Mode
	allow     map[string]bool
	workDir   string
	maxOutput int
}

// New creates a shell tool with the given posture.
func New(cfg Config) *Tool {
	allow := make(map[string]bool, len(cfg.Allow))
	for _, name := range cfg.Allow {
		allow[strings.TrimSpace(name)] = true
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 64 << 10
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeStrict
	}
	return &Tool{mode: mode, allow: allow, workDir: cfg.WorkDir, maxOutput: maxOutput}
}

// Mode returns the tool's fixed execution mode.
func (t *Tool) Mode() Mode { return t.mode }

// Name returns the tool name.
func (t *Tool) Name() string {
	return "run_command"
}

// Description returns the tool description.
func (t *Tool) Description() string {
	if t.mode == ModeStrict {
		allowed := make([]string, 0, len(t.allow))
		for name := range t.allow {
			allowed = append(allowed, name)
		}
		return fmt.Sprintf("Run an allow-listed command with arguments. Permitted commands: %s.", strings.Join(allowed, ", "))
	}
	return "Run a command with arguments. No shell interpolation is performed."
}

// Schema returns the JSON schema for the tool parameters.
func (t *Tool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Executable to run (no shell metacharacters).",
			},
			"args": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Arguments passed verbatim to the executable.",
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Validate checks a command against the tool's posture without running it.
func (t *Tool) Validate(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return fault.New(fault.InvalidInput, "command is required")
	}
	if strings.Contains(command, "\x00") || shellMetachars.MatchString(command) {
		return fault.New(fault.InvalidInput, "command contains unsafe characters")
	}
	if strings.HasPrefix(command, "-") {
		return fault.New(fault.InvalidInput, "command starts with dash (option injection)")
	}
	if !bareNamePattern.MatchString(command) {
		return fault.New(fault.InvalidInput, "command contains invalid characters")
	}
	if t.mode == ModeStrict && !t.allow[filepath.Base(command)] {
		return fault.New(fault.CommandNotAllowed, "command %q is not in the allow-list", command)
	}
	return nil
}

// Execute validates and runs the command, honoring ctx cancellation.
// Violations never spawn a process.
func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Command string   `json:"command"`
		Args    []string `json:"args"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return agent.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	if err := t.Validate(input.Command); err != nil {
		return agent.ErrorResult(err.Error()), nil
	}

	cmd := exec.CommandContext(ctx, strings.TrimSpace(input.Command), input.Args...)
	cmd.Dir = t.workDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	runErr := cmd.Run()
	text := output.String()
	if len(text) > t.maxOutput {
		text = text[:t.maxOutput] + fmt.Sprintf("\n[truncated: original length %d bytes]", output.Len())
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return agent.ErrorResult(fmt.Sprintf("run %s: %v", input.Command, runErr)), nil
		}
	}
	result := agent.JSONResult(map[string]any{
		"output":    text,
		"exit_code": exitCode,
	})
	result.IsError = exitCode != 0
	return result, nil
}
