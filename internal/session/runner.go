package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hearthd/hearth/internal/agent"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/history"
	"github.com/hearthd/hearth/internal/observability"
	"github.com/hearthd/hearth/internal/transfer"
	"github.com/hearthd/hearth/pkg/models"
)

// Deps carries the shared collaborators every runner needs.
type Deps struct {
	Provider   agent.Provider
	Registry   *agent.Registry
	Controller *transfer.Controller
	Store      history.Store
	Logger     *slog.Logger

	// MaxTransferDepth bounds transfers within one turn; zero selects
	// transfer.DefaultMaxDepth.
	MaxTransferDepth int

	// MaxTokens caps model responses; zero selects the provider default.
	MaxTokens int

	// Metrics is optional; when set, transfer outcomes are counted.
	Metrics *observability.Metrics
}

// TurnResult is what a completed turn returns to the transport layer.
type TurnResult struct {
	SessionID string         `json:"session_id"`
	Response  string         `json:"response"`
	Events    []models.Event `json:"events"`
}

// Runner owns one conversation: its transcript, event buffer, artifact
// map, and the identity of the agent left active by the previous turn.
// The turn loop is single-threaded; a user turn arriving while another is
// in progress is rejected with a busy error rather than queued.
type Runner struct {
	meta   models.SessionMeta
	root   string
	deps   Deps
	logger *slog.Logger

	// turnMu serializes turns. TryLock failure is the busy signal.
	turnMu sync.Mutex

	mu         sync.Mutex
	transcript []models.Turn
	artifacts  map[string]models.Artifact
	active     string
	turnSeq    int
	sink       func(models.Event)
	sinkSeq    uint64

	buffer *Buffer
}

// NewRunner creates a runner rooted at the named agent.
func NewRunner(meta models.SessionMeta, root string, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.MaxTransferDepth <= 0 {
		deps.MaxTransferDepth = transfer.DefaultMaxDepth
	}
	return &Runner{
		meta:      meta,
		root:      root,
		deps:      deps,
		logger:    logger.With("session_id", meta.ID),
		artifacts: make(map[string]models.Artifact),
		active:    root,
		buffer:    NewBuffer(0),
	}
}

// Meta returns the session metadata.
func (r *Runner) Meta() models.SessionMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meta
}

// SetName updates the session display name.
func (r *Runner) SetName(name string) {
	r.mu.Lock()
	r.meta.Name = name
	r.mu.Unlock()
}

// ActiveAgent returns the agent that will receive the next turn.
func (r *Runner) ActiveAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Transcript returns a copy of the in-memory transcript.
func (r *Runner) Transcript() []models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Turn(nil), r.transcript...)
}

// Events returns the buffered events in emission order.
func (r *Runner) Events() []models.Event { return r.buffer.Events() }

// SetSink installs the per-connection event push callback and returns a
// token identifying this installation. The sink is invoked synchronously
// from the turn loop; the gateway hands it a serialized writer queue.
func (r *Runner) SetSink(sink func(models.Event)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkSeq++
	r.sink = sink
	return r.sinkSeq
}

// ClearSink removes the sink only if token still identifies the current
// installation. A connection tearing down after its session was rebound to
// a newer connection must not clear that connection's sink.
func (r *Runner) ClearSink(token uint64) {
	r.mu.Lock()
	if r.sinkSeq == token {
		r.sink = nil
	}
	r.mu.Unlock()
}

// LastTurns returns the most recent limit turns, oldest first.
func (r *Runner) LastTurns(limit int) []models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	turns := r.transcript
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]models.Turn(nil), turns...)
}

// TurnsAfter replays the turns recorded after the given turn id. An
// unknown id replays nothing.
func (r *Runner) TurnsAfter(lastID string) []models.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, turn := range r.transcript {
		if turn.ID == lastID {
			return append([]models.Turn(nil), r.transcript[i+1:]...)
		}
	}
	return nil
}

// PutArtifact stores a named blob on the session.
func (r *Runner) PutArtifact(artifact models.Artifact) {
	r.mu.Lock()
	r.artifacts[artifact.Key] = artifact
	r.mu.Unlock()
}

// GetArtifact returns a stored blob.
func (r *Runner) GetArtifact(key string) (models.Artifact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	artifact, ok := r.artifacts[key]
	return artifact, ok
}

// ArtifactKeys returns the stored artifact keys, sorted.
func (r *Runner) ArtifactKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.artifacts))
	for key := range r.artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Reset clears the transcript, event buffer, and artifacts, reactivates
// the root agent, and drops the persisted transcript. The runner survives.
func (r *Runner) Reset(ctx context.Context) error {
	if !r.turnMu.TryLock() {
		return fault.New(fault.InvalidInput, "session %s is busy with another turn", r.meta.ID)
	}
	defer r.turnMu.Unlock()

	if err := r.deps.Store.ClearTurns(ctx, r.meta.ID); err != nil {
		return err
	}
	r.mu.Lock()
	r.transcript = nil
	r.artifacts = make(map[string]models.Artifact)
	r.active = r.root
	r.mu.Unlock()
	r.buffer.Clear()
	return nil
}

// RunTurn drives one user turn to completion: persist and append the user
// turn, stream the agent engine, execute tool calls, follow granted
// transfers, and persist the assistant turn before acknowledging it.
//
// A canceled or failed turn leaves no assistant turn in the transcript;
// events already emitted stay in the buffer for resync.
func (r *Runner) RunTurn(ctx context.Context, text string) (*TurnResult, error) {
	if !r.turnMu.TryLock() {
		return nil, fault.New(fault.InvalidInput, "session %s is busy with another turn", r.meta.ID)
	}
	defer r.turnMu.Unlock()

	// Session-scoped tools resolve their namespace from the context.
	ctx = observability.AddSessionID(ctx, r.meta.ID)

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.New(fault.InvalidInput, "message is required")
	}
	if len(text) > MaxEventText {
		return nil, fault.New(fault.PayloadTooLarge, "message exceeds %d characters", MaxEventText)
	}

	userTurn := models.Turn{
		ID:        r.nextTurnID(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	if err := r.deps.Store.AppendTurn(ctx, r.meta.ID, userTurn); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.transcript = append(r.transcript, userTurn)
	r.mu.Unlock()

	var turnEvents []models.Event
	emit := func(event models.Event) {
		event = BoundEvent(event)
		if !r.buffer.Append(event) {
			return
		}
		turnEvents = append(turnEvents, event)
		r.mu.Lock()
		sink := r.sink
		r.mu.Unlock()
		if sink != nil {
			sink(event)
		}
	}

	finalText, agentName, err := r.drive(ctx, emit)
	if err != nil {
		emit(newErrorEvent(err.Error(), time.Now().UTC()))
		return nil, err
	}

	assistantTurn := models.Turn{
		ID:        r.nextTurnID(),
		Role:      models.RoleAssistant,
		Content:   finalText,
		AgentName: agentName,
		Timestamp: time.Now().UTC(),
	}
	if err := r.deps.Store.AppendTurn(ctx, r.meta.ID, assistantTurn); err != nil {
		// The assistant turn is rolled back: it never enters the
		// in-memory transcript and the client sees the failure.
		return nil, err
	}
	r.mu.Lock()
	r.transcript = append(r.transcript, assistantTurn)
	r.mu.Unlock()

	return &TurnResult{SessionID: r.meta.ID, Response: finalText, Events: turnEvents}, nil
}

// drive runs the engine loop until a final response or an error. It
// returns the final text and the agent that produced it.
func (r *Runner) drive(ctx context.Context, emit func(models.Event)) (string, string, error) {
	depth := 0
	messages := r.conversationMessages()

	for {
		active, ok := r.deps.Controller.Get(r.ActiveAgent())
		if !ok {
			return "", "", fault.New(fault.UnknownResource, "active agent %q is not registered", r.ActiveAgent())
		}

		chunks, err := r.deps.Provider.Complete(ctx, &agent.CompletionRequest{
			Model:     active.Model(),
			System:    active.Instruction(),
			Messages:  messages,
			Tools:     r.toolDescriptors(active),
			MaxTokens: r.deps.MaxTokens,
		})
		if err != nil {
			return "", "", fault.Wrap(fault.Internal, err, "model request failed")
		}

		var textBuf strings.Builder
		var calls []models.ToolCall
		var streamErr error
		for chunk := range chunks {
			switch {
			case chunk.Error != nil:
				streamErr = chunk.Error
			case chunk.ToolCall != nil:
				calls = append(calls, *chunk.ToolCall)
			case chunk.Plan != "" || chunk.PlanStep != "":
				emit(newPlannerEvent(chunk.Plan, chunk.PlanStep, time.Now().UTC()))
			case chunk.Text != "":
				textBuf.WriteString(chunk.Text)
			}
		}
		if streamErr != nil {
			return "", "", fault.Wrap(fault.Internal, streamErr, "model stream failed")
		}

		if len(calls) == 0 {
			text := textBuf.String()
			emit(newModelResponseEvent(text, true, active.Name(), active.Model(), time.Now().UTC()))
			return text, active.Name(), nil
		}

		if textBuf.Len() > 0 {
			emit(newModelResponseEvent(textBuf.String(), false, active.Name(), active.Model(), time.Now().UTC()))
		}

		results := make([]models.ToolResult, 0, len(calls))
		for _, call := range calls {
			if ctx.Err() != nil {
				return "", "", fault.Wrap(fault.Internal, ctx.Err(), "turn canceled")
			}
			emit(newToolCallEvent(call, time.Now().UTC()))

			result, err := r.executeCall(ctx, active, call)
			if err != nil {
				return "", "", err
			}
			emit(newToolResultEvent(call, result.Content, result.IsError, time.Now().UTC()))

			if transfer.IsTransferCall(call.Name) {
				request, err := transfer.ParseRequest(result)
				if err == nil {
					if r.deps.Metrics != nil {
						r.deps.Metrics.TransferCounter.WithLabelValues(request.FromAgent, request.ToAgent, request.Status).Inc()
					}
					emit(newTransferEvent(request.FromAgent, request.ToAgent, request.Status, time.Now().UTC()))
					if request.Status == "granted" {
						depth++
						if depth > r.deps.MaxTransferDepth {
							return "", "", fault.New(fault.Internal,
								"transfer depth %d exceeded in one turn", r.deps.MaxTransferDepth)
						}
						r.setActive(request.ToAgent)
					}
				}
			}
			results = append(results, models.ToolResult{
				ToolCallID: call.ID,
				Content:    result.Content,
				IsError:    result.IsError,
			})
		}

		messages = append(messages,
			agent.CompletionMessage{Role: "assistant", Content: textBuf.String(), ToolCalls: calls},
			agent.CompletionMessage{Role: "tool", ToolResults: results},
		)
	}
}

// executeCall dispatches a tool call to the transfer controller or the
// registry. Only cancellation propagates as an error; everything else
// becomes an error result so the turn can continue.
func (r *Runner) executeCall(ctx context.Context, active *agent.Agent, call models.ToolCall) (*agent.ToolResult, error) {
	if transfer.IsTransferCall(call.Name) {
		result, err := r.deps.Controller.ToolFor(active.Name()).Execute(ctx, call.Input)
		if err != nil {
			return agent.ErrorResult(err.Error()), nil
		}
		return result, nil
	}
	if !agentHasTool(active, call.Name) {
		return agent.ErrorResult(fmt.Sprintf("tool %q is not available to agent %q", call.Name, active.Name())), nil
	}
	return r.deps.Registry.Execute(ctx, call.Name, call.Input)
}

func agentHasTool(a *agent.Agent, name string) bool {
	for _, tool := range a.Tools() {
		if tool.Name() == name {
			return true
		}
	}
	return false
}

// toolDescriptors lists the active agent's tools plus the synthetic
// transfer tool when the agent has permitted targets.
func (r *Runner) toolDescriptors(active *agent.Agent) []agent.Descriptor {
	tools := active.Tools()
	descriptors := make([]agent.Descriptor, 0, len(tools)+1)
	for _, tool := range tools {
		descriptors = append(descriptors, agent.Describe(tool))
	}
	if len(r.deps.Controller.Allowed(active.Name())) > 0 {
		descriptors = append(descriptors, agent.Describe(r.deps.Controller.ToolFor(active.Name())))
	}
	return descriptors
}

// conversationMessages projects the transcript into provider messages.
func (r *Runner) conversationMessages() []agent.CompletionMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]agent.CompletionMessage, 0, len(r.transcript))
	for _, turn := range r.transcript {
		messages = append(messages, agent.CompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return messages
}

func (r *Runner) setActive(name string) {
	r.mu.Lock()
	r.active = name
	r.mu.Unlock()
}

func (r *Runner) nextTurnID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turnSeq++
	return fmt.Sprintf("%s-%06d", r.meta.ID, r.turnSeq)
}
