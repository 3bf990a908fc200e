package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/history"
	"github.com/hearthd/hearth/internal/observability"
	"github.com/hearthd/hearth/internal/transfer"
	"github.com/hearthd/hearth/pkg/models"
)

type testTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error)
}

func (t *testTool) Name() string        { return t.name }
func (t *testTool) Description() string { return "test tool " + t.name }
func (t *testTool) Schema() json.RawMessage {
	if t.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(t.schema)
}
func (t *testTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.execute != nil {
		return t.execute(ctx, params)
	}
	return agent.TextResult("ok"), nil
}

// scriptedProvider pops one chunk sequence per Complete call and records
// every request it sees.
type scriptedProvider struct {
	mu       sync.Mutex
	scripts  [][]*agent.CompletionChunk
	requests []*agent.CompletionRequest
	release  chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if len(p.scripts) == 0 {
		p.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	script := p.scripts[0]
	p.scripts = p.scripts[1:]
	release := p.release
	p.mu.Unlock()

	ch := make(chan *agent.CompletionChunk)
	go func() {
		defer close(ch)
		if release != nil {
			select {
			case <-release:
			case <-ctx.Done():
				return
			}
		}
		for _, chunk := range script {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func textScript(text string) []*agent.CompletionChunk {
	return []*agent.CompletionChunk{{Text: text}, {Done: true}}
}

func toolScript(call models.ToolCall) []*agent.CompletionChunk {
	return []*agent.CompletionChunk{{ToolCall: &call}, {Done: true}}
}

func newTestRunner(t *testing.T, provider agent.Provider) (*Runner, *history.MemoryStore) {
	t.Helper()

	timeTool := &testTool{
		name: "get_current_time",
		execute: func(_ context.Context, _ json.RawMessage) (*agent.ToolResult, error) {
			return agent.JSONResult(map[string]string{"time": "2025-08-01T12:00:00Z"}), nil
		},
	}
	registry := agent.NewRegistry(0, nil)
	if err := registry.Register(timeTool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	controller := transfer.NewController()
	for _, cfg := range []agent.Config{
		{Name: "main", Model: "model-main", Tools: []agent.Tool{timeTool}, AllowedTransfers: []string{"scout"}},
		{Name: "scout", Model: "model-scout", AllowedTransfers: []string{"main"}},
		{Name: "axel", Model: "model-axel"},
	} {
		a, err := agent.New(cfg)
		if err != nil {
			t.Fatalf("agent.New(%s) error = %v", cfg.Name, err)
		}
		if err := controller.Register(a); err != nil {
			t.Fatalf("Register(%s) error = %v", cfg.Name, err)
		}
	}
	if err := controller.Resolve(); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	store := history.NewMemoryStore()
	meta := models.SessionMeta{ID: "s1", UserID: "user_s1", AppName: "main", CreatedAt: time.Now().UTC()}
	if err := store.SaveSession(context.Background(), meta); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	return NewRunner(meta, "main", Deps{
		Provider:   provider,
		Registry:   registry,
		Controller: controller,
		Store:      store,
		MaxTokens:  1024,
	}), store
}

func TestRunTurnWithToolCall(t *testing.T) {
	input := json.RawMessage(`{"timezone":"UTC"}`)
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: "get_current_time", Input: input}),
		textScript("It is noon."),
	}}
	runner, _ := newTestRunner(t, provider)

	result, err := runner.RunTurn(context.Background(), "what time is it")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if result.Response != "It is noon." {
		t.Fatalf("Response = %q", result.Response)
	}

	types := make([]models.EventType, 0, len(result.Events))
	for _, e := range result.Events {
		types = append(types, e.Type)
	}
	want := []models.EventType{models.EventToolCall, models.EventToolCall, models.EventModelResponse}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %v, want %v", i, types[i], want[i])
		}
	}

	// Tool input and output pass through verbatim.
	callEvent := result.Events[0]
	if got := callEvent.Details["input"].(json.RawMessage); string(got) != string(input) {
		t.Fatalf("input = %s, want %s", got, input)
	}
	resultEvent := result.Events[1]
	if out := resultEvent.Details["output"].(string); !strings.Contains(out, "2025-08-01T12:00:00Z") {
		t.Fatalf("output = %q", out)
	}

	// Transcript alternates user/assistant.
	turns := runner.Transcript()
	if len(turns) != 2 || turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Fatalf("transcript = %+v", turns)
	}
	if turns[1].AgentName != "main" {
		t.Fatalf("assistant agent = %q", turns[1].AgentName)
	}
}

func TestRunTurnExactlyOneFinalEvent(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: "get_current_time", Input: json.RawMessage(`{}`)}),
		textScript("done"),
	}}
	runner, _ := newTestRunner(t, provider)

	start := time.Now().UTC()
	result, err := runner.RunTurn(context.Background(), "hi")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	finals := 0
	for _, e := range result.Events {
		if e.Timestamp.Before(start) {
			t.Fatalf("event timestamp %v before turn start %v", e.Timestamp, start)
		}
		if e.IsFinal() {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("final events = %d, want 1", finals)
	}
}

func TestTransferGrantedSwitchesAgent(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: transfer.ToolName, Input: json.RawMessage(`{"agent_name":"scout"}`)}),
		textScript("scout here"),
	}}
	runner, _ := newTestRunner(t, provider)

	result, err := runner.RunTurn(context.Background(), "ask the scout")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if runner.ActiveAgent() != "scout" {
		t.Fatalf("ActiveAgent() = %q, want scout", runner.ActiveAgent())
	}

	var sawGranted bool
	for _, e := range result.Events {
		if e.Type == models.EventAgentTransfer && e.Details["status"] == "granted" {
			sawGranted = true
		}
	}
	if !sawGranted {
		t.Fatal("no granted transfer event emitted")
	}

	// The second model request runs under the scout's model.
	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.requests) != 2 || provider.requests[1].Model != "model-scout" {
		t.Fatalf("requests = %d, second model = %q", len(provider.requests), provider.requests[1].Model)
	}
	if turns := runner.Transcript(); turns[len(turns)-1].AgentName != "scout" {
		t.Fatalf("assistant turn agent = %q, want scout", turns[len(turns)-1].AgentName)
	}
}

func TestTransferDeniedKeepsAgent(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: transfer.ToolName, Input: json.RawMessage(`{"agent_name":"axel"}`)}),
		textScript("staying put"),
	}}
	runner, _ := newTestRunner(t, provider)

	result, err := runner.RunTurn(context.Background(), "go to axel")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if runner.ActiveAgent() != "main" {
		t.Fatalf("ActiveAgent() = %q, want main after denial", runner.ActiveAgent())
	}
	var sawDenied bool
	for _, e := range result.Events {
		if e.Type == models.EventAgentTransfer && e.Details["status"] == "denied" {
			sawDenied = true
		}
	}
	if !sawDenied {
		t.Fatal("no denied transfer event emitted")
	}
	if result.Response != "staying put" {
		t.Fatalf("Response = %q, turn should continue after denial", result.Response)
	}
}

func TestTransferDepthBound(t *testing.T) {
	// main and scout hand off to each other forever.
	scripts := make([][]*agent.CompletionChunk, 0, 16)
	for i := 0; i < 8; i++ {
		target := "scout"
		if i%2 == 1 {
			target = "main"
		}
		scripts = append(scripts, toolScript(models.ToolCall{
			ID: "c", Name: transfer.ToolName,
			Input: json.RawMessage(`{"agent_name":"` + target + `"}`),
		}))
	}
	provider := &scriptedProvider{scripts: scripts}
	runner, _ := newTestRunner(t, provider)
	runner.deps.MaxTransferDepth = 3

	_, err := runner.RunTurn(context.Background(), "ping pong")
	if err == nil {
		t.Fatal("expected depth error")
	}
	if !strings.Contains(err.Error(), "transfer depth") {
		t.Fatalf("error = %v", err)
	}
	if turns := runner.Transcript(); len(turns) != 1 {
		t.Fatalf("transcript = %d turns, want only the user turn", len(turns))
	}
}

func TestRunTurnBusyRejected(t *testing.T) {
	release := make(chan struct{})
	provider := &scriptedProvider{
		scripts: [][]*agent.CompletionChunk{textScript("slow answer")},
		release: release,
	}
	runner, _ := newTestRunner(t, provider)

	done := make(chan error, 1)
	go func() {
		_, err := runner.RunTurn(context.Background(), "first")
		done <- err
	}()

	// Wait for the first turn to enter the provider.
	deadline := time.Now().Add(2 * time.Second)
	for provider.requestCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first turn never reached the provider")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err := runner.RunTurn(context.Background(), "second")
	if !fault.IsKind(err, fault.InvalidInput) || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("concurrent RunTurn() error = %v, want busy rejection", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first RunTurn() error = %v", err)
	}
}

// failingStore fails AppendTurn after a set number of successes.
type failingStore struct {
	*history.MemoryStore
	allow int
}

func (s *failingStore) AppendTurn(ctx context.Context, sessionID string, turn models.Turn) error {
	if s.allow <= 0 {
		return fault.New(fault.Persistence, "write failed")
	}
	s.allow--
	return s.MemoryStore.AppendTurn(ctx, sessionID, turn)
}

func TestPersistenceFailureRollsBackAssistantTurn(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{textScript("answer")}}
	runner, store := newTestRunner(t, provider)
	runner.deps.Store = &failingStore{MemoryStore: store, allow: 1}

	_, err := runner.RunTurn(context.Background(), "hello")
	if !fault.IsKind(err, fault.Persistence) {
		t.Fatalf("RunTurn() error = %v, want Persistence", err)
	}
	turns := runner.Transcript()
	if len(turns) != 1 || turns[0].Role != models.RoleUser {
		t.Fatalf("transcript = %+v, want only the user turn", turns)
	}
}

func TestCanceledTurnLeavesNoAssistantTurn(t *testing.T) {
	release := make(chan struct{})
	provider := &scriptedProvider{
		scripts: [][]*agent.CompletionChunk{textScript("never delivered")},
		release: release,
	}
	runner, _ := newTestRunner(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := runner.RunTurn(ctx, "hello")
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for provider.requestCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("turn never reached the provider")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err == nil {
		t.Fatal("expected error from canceled turn")
	}
	if turns := runner.Transcript(); len(turns) != 1 {
		t.Fatalf("transcript = %d turns, want only the user turn", len(turns))
	}
}

func TestOversizedResponseTruncatedInEvents(t *testing.T) {
	big := strings.Repeat("x", MaxEventText+500)
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{textScript(big)}}
	runner, _ := newTestRunner(t, provider)

	result, err := runner.RunTurn(context.Background(), "talk a lot")
	if err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	final := result.Events[len(result.Events)-1]
	text := final.Text()
	if !strings.Contains(text, "[truncated: original length") {
		t.Fatal("truncation marker missing")
	}
	if len(text) > MaxEventText+100 {
		t.Fatalf("event text length = %d", len(text))
	}
	// The HTTP response text itself is bounded by the frame splitter, not
	// the event truncation; the transcript keeps the full text.
	if len(result.Response) != len(big) {
		t.Fatalf("Response length = %d, want %d", len(result.Response), len(big))
	}
}

func TestEmptyAndOversizedUserInput(t *testing.T) {
	provider := &scriptedProvider{}
	runner, _ := newTestRunner(t, provider)

	if _, err := runner.RunTurn(context.Background(), "   "); !fault.IsKind(err, fault.InvalidInput) {
		t.Fatalf("empty message error = %v, want InvalidInput", err)
	}
	huge := strings.Repeat("y", MaxEventText+1)
	if _, err := runner.RunTurn(context.Background(), huge); !fault.IsKind(err, fault.PayloadTooLarge) {
		t.Fatalf("oversized message error = %v, want PayloadTooLarge", err)
	}
}

func TestResetClearsStateAndReactivatesRoot(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: transfer.ToolName, Input: json.RawMessage(`{"agent_name":"scout"}`)}),
		textScript("scout here"),
	}}
	runner, store := newTestRunner(t, provider)

	if _, err := runner.RunTurn(context.Background(), "go"); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	if err := runner.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if runner.ActiveAgent() != "main" {
		t.Fatalf("ActiveAgent() = %q after reset", runner.ActiveAgent())
	}
	if len(runner.Transcript()) != 0 || len(runner.Events()) != 0 {
		t.Fatal("reset left transcript or events behind")
	}
	persisted, _ := store.Turns(context.Background(), "s1", 0)
	if len(persisted) != 0 {
		t.Fatalf("persisted turns survived reset: %d", len(persisted))
	}
}

func TestTransferOutcomesCounted(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		toolScript(models.ToolCall{ID: "c1", Name: transfer.ToolName, Input: json.RawMessage(`{"agent_name":"scout"}`)}),
		toolScript(models.ToolCall{ID: "c2", Name: transfer.ToolName, Input: json.RawMessage(`{"agent_name":"axel"}`)}),
		textScript("done"),
	}}
	runner, _ := newTestRunner(t, provider)
	metrics := observability.NewMetrics()
	runner.deps.Metrics = metrics

	// main -> scout is granted; scout -> axel is denied by the rules.
	if _, err := runner.RunTurn(context.Background(), "go"); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.TransferCounter.WithLabelValues("main", "scout", "granted")); got != 1 {
		t.Fatalf("granted transfers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.TransferCounter.WithLabelValues("scout", "axel", "denied")); got != 1 {
		t.Fatalf("denied transfers = %v, want 1", got)
	}
}

func TestArtifactsRoundTripAndReset(t *testing.T) {
	provider := &scriptedProvider{}
	runner, _ := newTestRunner(t, provider)

	runner.PutArtifact(models.Artifact{Key: "notes.txt", ContentType: "text/plain", Data: []byte("remember milk")})
	runner.PutArtifact(models.Artifact{Key: "floorplan.png", ContentType: "image/png", Data: []byte{0x89, 0x50}})

	if keys := runner.ArtifactKeys(); len(keys) != 2 || keys[0] != "floorplan.png" || keys[1] != "notes.txt" {
		t.Fatalf("ArtifactKeys() = %v, want sorted pair", keys)
	}
	artifact, ok := runner.GetArtifact("notes.txt")
	if !ok || artifact.ContentType != "text/plain" || string(artifact.Data) != "remember milk" {
		t.Fatalf("GetArtifact() = %+v, %v", artifact, ok)
	}
	if _, ok := runner.GetArtifact("ghost"); ok {
		t.Fatal("GetArtifact(ghost) reported a hit")
	}

	if err := runner.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if keys := runner.ArtifactKeys(); len(keys) != 0 {
		t.Fatalf("artifacts survived reset: %v", keys)
	}
}

func TestSinkReceivesEvents(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{textScript("hi")}}
	runner, _ := newTestRunner(t, provider)

	var mu sync.Mutex
	var pushed []models.Event
	runner.SetSink(func(e models.Event) {
		mu.Lock()
		pushed = append(pushed, e)
		mu.Unlock()
	})

	if _, err := runner.RunTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 1 || pushed[0].Type != models.EventModelResponse {
		t.Fatalf("pushed = %+v", pushed)
	}
}

func TestStaleSinkClearKeepsReplacement(t *testing.T) {
	provider := &scriptedProvider{scripts: [][]*agent.CompletionChunk{
		textScript("first"),
		textScript("second"),
	}}
	runner, _ := newTestRunner(t, provider)

	var mu sync.Mutex
	var pushed []models.Event
	oldToken := runner.SetSink(func(models.Event) { t.Error("stale sink invoked") })
	newToken := runner.SetSink(func(e models.Event) {
		mu.Lock()
		pushed = append(pushed, e)
		mu.Unlock()
	})

	// A connection closing after it was replaced must not tear down the
	// replacement's sink.
	runner.ClearSink(oldToken)
	if _, err := runner.RunTurn(context.Background(), "hello"); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	mu.Lock()
	if len(pushed) != 1 {
		mu.Unlock()
		t.Fatalf("replacement sink saw %d events, want 1", len(pushed))
	}
	mu.Unlock()

	// Clearing with the current token does detach.
	runner.ClearSink(newToken)
	if _, err := runner.RunTurn(context.Background(), "again"); err != nil {
		t.Fatalf("RunTurn() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(pushed) != 1 {
		t.Fatalf("detached sink still received events: %d", len(pushed))
	}
}
