package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthd/hearth/internal/session"
	"github.com/hearthd/hearth/pkg/models"
)

const (
	wsMaxPayloadBytes = session.MaxFrameBytes
	wsWriteWait       = 10 * time.Second
	wsSendBuffer      = 64

	// maxArtifactBytes bounds one stored session artifact.
	maxArtifactBytes = 4 << 20

	defaultHistoryLimit = 50
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsFrame is the JSON vocabulary in both directions. Inbound frames carry
// either message (a new user turn) or type; outbound frames always carry
// type.
type wsFrame struct {
	Type          string         `json:"type,omitempty"`
	Message       string         `json:"message,omitempty"`
	Content       any            `json:"content,omitempty"`
	Messages      []models.Turn  `json:"messages,omitempty"`
	LastMessageID string         `json:"lastMessageId,omitempty"`
	Timestamp     string         `json:"timestamp,omitempty"`
	Limit         int            `json:"limit,omitempty"`
}

// wsConn is one client connection bound to one session runner. All writes
// go through the send channel so concurrent producers never interleave on
// the socket.
type wsConn struct {
	server *Server
	runner *session.Runner
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	runner, err := s.deps.Manager.GetOrCreate(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.syncSessionsGauge()

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsConn{
		server: s,
		runner: runner,
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.WSConnections.Inc()
		defer s.deps.Metrics.WSConnections.Dec()
	}

	// The clear is token-guarded: if a newer connection rebinds this
	// runner before we tear down, its sink survives.
	sinkToken := runner.SetSink(client.emitEvent)
	defer runner.ClearSink(sinkToken)

	go client.writeLoop()
	client.readLoop()
	client.close()
}

func (c *wsConn) close() {
	c.cancel()
	_ = c.conn.Close()
}

// readLoop consumes client frames until disconnect or idle timeout. Every
// received frame refreshes the read deadline, so a connection that stays
// silent past the idle timeout is reaped.
func (c *wsConn) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.server.config.IdleTimeout))

		frame, err := decodeClientFrame(data)
		if err != nil {
			c.enqueueFrame(wsFrame{Type: "status", Content: fmt.Sprintf("invalid frame: %v", err)})
			continue
		}
		c.dispatch(frame)
	}
}

func (c *wsConn) dispatch(frame *wsFrame) {
	switch {
	case frame.Message != "":
		// Turns run off the read loop so heartbeats keep flowing while
		// the model works. A busy runner rejects the overlapping turn.
		go c.runTurn(frame.Message)
	case frame.Type == "heartbeat":
		c.enqueueFrame(wsFrame{Type: "heartbeat"})
	case frame.Type == "sync_request":
		c.enqueueTurns("sync_response", c.runner.TurnsAfter(frame.LastMessageID))
	case frame.Type == "history_request":
		limit := frame.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}
		c.enqueueTurns("history", c.runner.LastTurns(limit))
	default:
		c.enqueueFrame(wsFrame{Type: "status", Content: fmt.Sprintf("unknown frame type %q", frame.Type)})
	}
}

func (c *wsConn) runTurn(text string) {
	c.enqueueFrame(wsFrame{Type: "status", Content: "thinking"})

	start := time.Now()
	result, err := c.runner.RunTurn(c.ctx, text)
	c.server.observeTurn(c.runner.ActiveAgent(), start, err)
	if err != nil {
		c.enqueueFrame(wsFrame{Type: "status", Content: err.Error()})
		return
	}
	c.enqueueFrame(wsFrame{Type: "message", Content: result.Response})
}

// emitEvent is the runner sink; events stream to the client as the turn
// progresses.
func (c *wsConn) emitEvent(event models.Event) {
	if c.server.deps.Metrics != nil {
		c.server.deps.Metrics.EventCounter.WithLabelValues(string(event.Type)).Inc()
	}
	for _, batch := range session.SplitFrames([]models.Event{event}) {
		c.enqueueFrame(wsFrame{Type: "events", Content: batch})
	}
}

// enqueueTurns sends a turn list, chunked so no frame exceeds the payload
// bound.
func (c *wsConn) enqueueTurns(frameType string, turns []models.Turn) {
	if len(turns) == 0 {
		c.enqueueFrame(wsFrame{Type: frameType, Messages: []models.Turn{}})
		return
	}
	var batch []models.Turn
	batchBytes := 0
	flush := func() {
		if len(batch) > 0 {
			c.enqueueFrame(wsFrame{Type: frameType, Messages: batch})
			batch, batchBytes = nil, 0
		}
	}
	for _, turn := range turns {
		encoded, err := json.Marshal(turn)
		if err != nil {
			continue
		}
		if batchBytes+len(encoded) > wsMaxPayloadBytes/2 {
			flush()
		}
		batch = append(batch, turn)
		batchBytes += len(encoded)
	}
	flush()
}

func (c *wsConn) enqueueFrame(frame wsFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	case <-c.ctx.Done():
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "write failed"), time.Now().Add(wsWriteWait))
				c.cancel()
				return
			}
		}
	}
}
