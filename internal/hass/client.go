package hass

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthd/hearth/internal/backoff"
	"github.com/hearthd/hearth/internal/fault"
	"github.com/hearthd/hearth/internal/observability"
)

const (
	requestTimeout  = 10 * time.Second
	registryTimeout = 30 * time.Second
	writeTimeout    = 10 * time.Second
	dialTimeout     = 10 * time.Second
)

// Client is the reconnecting Home Assistant WebSocket client. It owns the
// authentication handshake, a monotonic request/response correlator, and a
// background listener that feeds state_changed events into the cache. On
// every (re)connect it re-authenticates, re-subscribes, and refreshes the
// full state snapshot and both registries before serving requests.
type Client struct {
	url     string
	token   string
	cache   *StateCache
	logger  *slog.Logger
	policy  backoff.Policy
	dialer  *websocket.Dialer
	metrics *observability.Metrics

	// sendMu is held for one full request/response cycle so frames from
	// concurrent callers never interleave on the socket.
	sendMu sync.Mutex

	connMu    sync.Mutex
	conn      *websocket.Conn
	closed    chan struct{}
	ready     bool
	nextID    int64
	haVersion string
	subs      []Subscription

	pendMu  sync.Mutex
	pending map[int64]chan frame

	events chan stateChange

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBackoff overrides the reconnect backoff policy.
func WithBackoff(policy backoff.Policy) ClientOption {
	return func(c *Client) { c.policy = policy }
}

// WithMetrics installs the metrics collector; request outcomes, round-trip
// times, and reconnects are recorded on it.
func WithMetrics(metrics *observability.Metrics) ClientOption {
	return func(c *Client) { c.metrics = metrics }
}

// NewClient creates a client for the given Home Assistant WebSocket URL.
// An http(s) URL is rewritten to its ws(s) equivalent with the standard
// /api/websocket path appended when missing.
func NewClient(url, token string, cache *StateCache, opts ...ClientOption) *Client {
	c := &Client{
		url:     websocketURL(url),
		token:   token,
		cache:   cache,
		logger:  slog.Default(),
		policy:  backoff.DefaultPolicy(),
		dialer:  &websocket.Dialer{HandshakeTimeout: dialTimeout},
		pending: make(map[int64]chan frame),
		events:  make(chan stateChange),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "hass")
	return c
}

func websocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	if !strings.Contains(url, "/api/websocket") {
		url = strings.TrimSuffix(url, "/") + "/api/websocket"
	}
	return url
}

// Start launches the connection loop. It returns immediately; requests
// issued before the first successful handshake fail with ConnectionReset.
func (c *Client) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return fault.New(fault.InvalidInput, "client already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.applyEvents(runCtx)
	go c.run(runCtx)
	return nil
}

// Stop cancels the listener, closes the socket, and waits for the
// connection loop to observe shutdown.
func (c *Client) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.runMu.Unlock()

	cancel()
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
	<-done
}

// Connected reports whether an authenticated connection is live.
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.ready
}

// HAVersion returns the server version captured during the last handshake.
func (c *Client) HAVersion() string {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.haVersion
}

// Cache returns the state cache this client feeds.
func (c *Client) Cache() *StateCache { return c.cache }

// run is the reconnect loop. Auth rejection is fatal; everything else
// retries with backoff. The attempt counter resets after each successful
// priming so a long-lived connection earns a fresh backoff schedule.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	attempt := 0
	sessions := 0
	for ctx.Err() == nil {
		conn, err := c.connect(ctx)
		if err != nil {
			if fault.IsKind(err, fault.AuthRejected) {
				c.logger.Error("authentication rejected, giving up", "error", err)
				return
			}
			c.logger.Warn("connect failed", "error", err, "attempt", attempt)
			if err := c.policy.Sleep(ctx, attempt); err != nil {
				return
			}
			attempt++
			continue
		}
		if sessions > 0 && c.metrics != nil {
			c.metrics.HAReconnectCounter.Inc()
		}
		sessions++

		// The read loop must be running before any request is issued, or
		// replies would never be routed to their waiters.
		readErr := make(chan error, 1)
		go func() { readErr <- c.readLoop(ctx, conn) }()

		if err := c.prime(ctx); err != nil {
			c.logger.Warn("priming failed", "error", err)
			c.teardown(conn)
			<-readErr
			if err := c.policy.Sleep(ctx, attempt); err != nil {
				return
			}
			attempt++
			continue
		}
		attempt = 0
		c.logger.Info("connected", "ha_version", c.HAVersion(), "entities", c.cache.Len())

		err = <-readErr
		c.teardown(conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("connection lost", "error", err)
		if err := c.policy.Sleep(ctx, attempt); err != nil {
			return
		}
		attempt++
	}
}

// connect dials and runs the auth handshake. The message-id counter resets
// to 1 only after auth_ok.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.ConnectionReset, err, "dial %s", c.url)
	}

	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fault.Wrap(fault.ConnectionReset, err, "read auth_required")
	}
	if hello.Type != msgAuthRequired {
		conn.Close()
		return nil, fault.New(fault.ConnectionReset, "unexpected handshake frame %q", hello.Type)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(map[string]string{"type": msgAuth, "access_token": c.token}); err != nil {
		conn.Close()
		return nil, fault.Wrap(fault.ConnectionReset, err, "send auth")
	}

	conn.SetReadDeadline(time.Now().Add(requestTimeout))
	var reply frame
	if err := conn.ReadJSON(&reply); err != nil {
		conn.Close()
		return nil, fault.Wrap(fault.ConnectionReset, err, "read auth reply")
	}
	switch reply.Type {
	case msgAuthOK:
	case msgAuthInvalid:
		conn.Close()
		return nil, fault.New(fault.AuthRejected, "home assistant rejected access token")
	default:
		conn.Close()
		return nil, fault.New(fault.ConnectionReset, "unexpected auth reply %q", reply.Type)
	}
	conn.SetReadDeadline(time.Time{})

	c.connMu.Lock()
	c.conn = conn
	c.closed = make(chan struct{})
	c.ready = true
	c.nextID = 1
	c.haVersion = reply.HAVersion
	c.subs = nil
	c.connMu.Unlock()
	return conn, nil
}

// prime re-subscribes and refreshes cache contents after a handshake.
func (c *Client) prime(ctx context.Context) error {
	if _, err := c.Subscribe(ctx, eventStateChanged); err != nil {
		return err
	}
	return c.Refresh(ctx)
}

// Refresh replaces the cached state snapshot and both registries.
func (c *Client) Refresh(ctx context.Context) error {
	states, err := c.GetAllStates(ctx)
	if err != nil {
		return err
	}
	c.cache.ReplaceStates(states)

	entities, err := c.GetEntityRegistryForDisplay(ctx)
	if err != nil {
		return err
	}
	c.cache.ReplaceEntityRegistry(entities)

	devices, err := c.GetDeviceRegistry(ctx)
	if err != nil {
		return err
	}
	c.cache.ReplaceDeviceRegistry(devices)
	return nil
}

// readLoop reads frames until the connection fails, routing results to
// their pending request and events to the cache applier.
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		switch f.Type {
		case msgResult:
			c.deliver(f)
		case msgEvent:
			c.handleEvent(ctx, f)
		case msgPong:
		default:
			c.logger.Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (c *Client) deliver(f frame) {
	c.pendMu.Lock()
	ch, ok := c.pending[f.ID]
	if ok {
		delete(c.pending, f.ID)
	}
	c.pendMu.Unlock()
	if !ok {
		// A late reply after its request timed out, or a frame for an id
		// we never issued. Either way it has no owner.
		c.logger.Debug("dropping unmatched result frame", "id", f.ID)
		return
	}
	ch <- f
}

func (c *Client) handleEvent(ctx context.Context, f frame) {
	var envelope eventEnvelope
	if err := json.Unmarshal(f.Event, &envelope); err != nil {
		c.logger.Warn("dropping malformed event", "error", err)
		return
	}
	if envelope.EventType != eventStateChanged {
		return
	}
	var change stateChange
	if err := json.Unmarshal(envelope.Data, &change); err != nil {
		c.logger.Warn("dropping malformed state_changed payload", "error", err)
		return
	}
	select {
	case c.events <- change:
	case <-ctx.Done():
	}
}

// applyEvents is the single consumer of the event channel; it serializes
// cache deltas outside the read loop.
func (c *Client) applyEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-c.events:
			c.cache.ApplyStateChanged(change.EntityID, change.NewState)
		}
	}
}

// teardown marks the connection dead and fails every in-flight request.
func (c *Client) teardown(conn *websocket.Conn) {
	conn.Close()
	c.connMu.Lock()
	if c.conn == conn {
		c.ready = false
		c.conn = nil
		if c.closed != nil {
			close(c.closed)
			c.closed = nil
		}
	}
	c.connMu.Unlock()
}

// request performs one correlated request/response cycle. The send lock is
// held until the reply arrives, the per-request timeout fires, or the
// connection dies, so at most one cycle is ever in flight.
func (c *Client) request(ctx context.Context, timeout time.Duration, payload map[string]any) (json.RawMessage, error) {
	result, _, err := c.do(ctx, timeout, payload)
	return result, err
}

func (c *Client) do(ctx context.Context, timeout time.Duration, payload map[string]any) (json.RawMessage, int64, error) {
	reqType, _ := payload["type"].(string)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.connMu.Lock()
	if !c.ready {
		c.connMu.Unlock()
		return nil, 0, fault.New(fault.ConnectionReset, "not connected to home assistant")
	}
	conn := c.conn
	closed := c.closed
	id := c.nextID
	c.nextID++
	c.connMu.Unlock()

	ch := make(chan frame, 1)
	c.pendMu.Lock()
	c.pending[id] = ch
	c.pendMu.Unlock()
	defer func() {
		c.pendMu.Lock()
		delete(c.pending, id)
		c.pendMu.Unlock()
	}()

	payload["id"] = id
	start := time.Now()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(payload); err != nil {
		c.observe(reqType, start, "error")
		return nil, id, fault.Wrap(fault.ConnectionReset, err, "send %v request", payload["type"])
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f := <-ch:
		if f.Success != nil && !*f.Success {
			c.observe(reqType, start, "error")
			return nil, id, fault.New(fault.Internal, "home assistant %v failed: %s", payload["type"], f.Error.String())
		}
		c.observe(reqType, start, "success")
		return f.Result, id, nil
	case <-timer.C:
		c.observe(reqType, start, "timeout")
		return nil, id, fault.New(fault.RequestTimeout, "%v request %d timed out after %s", payload["type"], id, timeout)
	case <-closed:
		c.observe(reqType, start, "error")
		return nil, id, fault.New(fault.ConnectionReset, "connection lost while awaiting %v reply", payload["type"])
	case <-ctx.Done():
		c.observe(reqType, start, "error")
		return nil, id, ctx.Err()
	}
}

// observe records one request outcome when a collector is installed.
func (c *Client) observe(reqType string, start time.Time, status string) {
	if c.metrics == nil {
		return
	}
	c.metrics.HARequestCounter.WithLabelValues(reqType, status).Inc()
	c.metrics.HARequestDuration.WithLabelValues(reqType).Observe(time.Since(start).Seconds())
}

// Subscribe registers an event subscription and records it for reporting.
func (c *Client) Subscribe(ctx context.Context, eventType string) (Subscription, error) {
	_, id, err := c.do(ctx, requestTimeout, map[string]any{
		"type":       msgSubscribeEvents,
		"event_type": eventType,
	})
	if err != nil {
		return Subscription{}, err
	}
	sub := Subscription{ID: id, EventType: eventType}
	c.connMu.Lock()
	c.subs = append(c.subs, sub)
	c.connMu.Unlock()
	return sub, nil
}

// Subscriptions returns the subscriptions active on the current connection.
func (c *Client) Subscriptions() []Subscription {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return append([]Subscription(nil), c.subs...)
}

// GetAllStates fetches the full state snapshot.
func (c *Client) GetAllStates(ctx context.Context) ([]Entity, error) {
	result, err := c.request(ctx, requestTimeout, map[string]any{"type": msgGetStates})
	if err != nil {
		return nil, err
	}
	var states []Entity
	if err := json.Unmarshal(result, &states); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decode get_states result")
	}
	return states, nil
}

// GetEntityRegistry fetches the full entity registry.
func (c *Client) GetEntityRegistry(ctx context.Context) ([]RegistryEntry, error) {
	result, err := c.request(ctx, registryTimeout, map[string]any{"type": msgEntityRegistryList})
	if err != nil {
		return nil, err
	}
	var entries []RegistryEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decode entity registry result")
	}
	return entries, nil
}

// GetEntityRegistryForDisplay fetches the display-oriented entity registry.
// Newer servers wrap the list in an {entities: [...]} envelope; older ones
// return the bare array.
func (c *Client) GetEntityRegistryForDisplay(ctx context.Context) ([]RegistryEntry, error) {
	result, err := c.request(ctx, registryTimeout, map[string]any{"type": msgEntityRegistryForDisplay})
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Entities []RegistryEntry `json:"entities"`
	}
	if err := json.Unmarshal(result, &wrapped); err == nil && wrapped.Entities != nil {
		return wrapped.Entities, nil
	}
	var entries []RegistryEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decode display registry result")
	}
	return entries, nil
}

// GetDeviceRegistry fetches the device registry.
func (c *Client) GetDeviceRegistry(ctx context.Context) ([]DeviceEntry, error) {
	result, err := c.request(ctx, registryTimeout, map[string]any{"type": msgDeviceRegistryList})
	if err != nil {
		return nil, err
	}
	var entries []DeviceEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "decode device registry result")
	}
	return entries, nil
}

// CallService invokes a Home Assistant service against a target entity.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) (json.RawMessage, error) {
	payload := map[string]any{
		"type":    msgCallService,
		"domain":  domain,
		"service": service,
	}
	if len(data) > 0 {
		payload["service_data"] = data
	}
	return c.request(ctx, requestTimeout, payload)
}
