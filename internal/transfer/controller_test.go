package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
)

func mustAgent(t *testing.T, name string, transfers ...string) *agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{Name: name, Model: "m", AllowedTransfers: transfers})
	if err != nil {
		t.Fatalf("agent.New(%q) error = %v", name, err)
	}
	return a
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController()
	for _, a := range []*agent.Agent{
		mustAgent(t, "main", "scout", "axel"),
		mustAgent(t, "scout", "beto"),
		mustAgent(t, "axel"),
		mustAgent(t, "beto"),
	} {
		if err := c.Register(a); err != nil {
			t.Fatalf("Register(%s) error = %v", a.Name(), err)
		}
	}
	if err := c.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return c
}

func TestRegisterDuplicateName(t *testing.T) {
	c := NewController()
	a := mustAgent(t, "main")
	if err := c.Register(a); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	// Same agent again is idempotent.
	if err := c.Register(a); err != nil {
		t.Fatalf("idempotent Register() error = %v", err)
	}
	// A different agent under the same name is rejected.
	err := c.Register(mustAgent(t, "main"))
	if !errors.Is(err, ErrDuplicateAgent) {
		t.Fatalf("Register(dup) error = %v, want ErrDuplicateAgent", err)
	}
}

func TestResolveRejectsDanglingEdge(t *testing.T) {
	c := NewController()
	if err := c.Register(mustAgent(t, "main", "ghost")); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Resolve(); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownAgent", err)
	}
}

func TestTransferAllowedAndDenied(t *testing.T) {
	c := newTestController(t)

	target, err := c.Transfer("main", "scout")
	if err != nil {
		t.Fatalf("Transfer(main, scout) error = %v", err)
	}
	if target.Name() != "scout" {
		t.Fatalf("Transfer returned %q, want scout", target.Name())
	}

	_, err = c.Transfer("scout", "axel")
	if !fault.IsKind(err, fault.TransferDenied) {
		t.Fatalf("Transfer(scout, axel) error = %v, want TransferDenied", err)
	}

	_, err = c.Transfer("main", "nobody")
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("Transfer(main, nobody) error = %v, want ErrUnknownAgent", err)
	}
}

func TestAllowTransferValidation(t *testing.T) {
	c := newTestController(t)

	if err := c.AllowTransfer("beto", "beto"); err == nil {
		t.Fatal("expected error for reflexive edge")
	}
	if err := c.AllowTransfer("beto", "ghost"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("AllowTransfer(beto, ghost) error = %v, want ErrUnknownAgent", err)
	}
	if err := c.AllowTransfer("beto", "main"); err != nil {
		t.Fatalf("AllowTransfer(beto, main) error = %v", err)
	}
	if _, err := c.Transfer("beto", "main"); err != nil {
		t.Fatalf("Transfer(beto, main) after AllowTransfer error = %v", err)
	}
}

func TestSetModel(t *testing.T) {
	c := newTestController(t)

	if err := c.SetModel("scout", "m2"); err != nil {
		t.Fatalf("SetModel(scout) error = %v", err)
	}
	a, ok := c.Get("scout")
	if !ok || a.Model() != "m2" {
		t.Fatalf("Get(scout) model = %q, want m2", a.Model())
	}
	// Transfer rules survive the swap.
	if _, err := c.Transfer("scout", "beto"); err != nil {
		t.Fatalf("Transfer(scout, beto) after SetModel error = %v", err)
	}
	if err := c.SetModel("ghost", "m2"); !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("SetModel(ghost) error = %v, want ErrUnknownAgent", err)
	}
}

func TestRegisterPairBidirectional(t *testing.T) {
	c := newTestController(t)
	if err := c.RegisterPair("axel", "beto", true); err != nil {
		t.Fatalf("RegisterPair() error = %v", err)
	}
	if _, err := c.Transfer("axel", "beto"); err != nil {
		t.Fatalf("forward edge error = %v", err)
	}
	if _, err := c.Transfer("beto", "axel"); err != nil {
		t.Fatalf("reverse edge error = %v", err)
	}
}

func TestToolSchemaEncodesAllowedTargets(t *testing.T) {
	c := newTestController(t)
	tool := c.ToolFor("main")

	var schema struct {
		Properties struct {
			AgentName struct {
				Enum []string `json:"enum"`
			} `json:"agent_name"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(tool.Schema(), &schema); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	if len(schema.Properties.AgentName.Enum) != 2 {
		t.Fatalf("enum = %v, want [axel scout]", schema.Properties.AgentName.Enum)
	}
	if schema.Properties.AgentName.Enum[0] != "axel" || schema.Properties.AgentName.Enum[1] != "scout" {
		t.Fatalf("enum = %v, want sorted [axel scout]", schema.Properties.AgentName.Enum)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "agent_name" {
		t.Fatalf("required = %v", schema.Required)
	}
}

func TestToolExecuteGrantAndDeny(t *testing.T) {
	c := newTestController(t)

	result, err := c.ToolFor("main").Execute(context.Background(), json.RawMessage(`{"agent_name":"scout"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	request, err := ParseRequest(result)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if request.Status != "granted" || request.ToAgent != "scout" || request.FromAgent != "main" {
		t.Fatalf("unexpected request %+v", request)
	}

	result, err = c.ToolFor("scout").Execute(context.Background(), json.RawMessage(`{"agent_name":"axel"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	request, err = ParseRequest(result)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if request.Status != "denied" {
		t.Fatalf("expected denied status, got %+v", request)
	}
	if !result.IsError || !strings.Contains(request.Reason, "may not transfer") {
		t.Fatalf("expected denial reason, got %+v", request)
	}
}
