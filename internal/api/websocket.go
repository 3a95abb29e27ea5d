package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-unifi/internal/objectstore"
	"github.com/nerrad567/gray-logic-unifi/internal/statesync"
)

// Frame types. Clients send subscribe, unsubscribe and ping. The server
// answers with ack, pong or error, and streams state and snapshot frames.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameError       = "error"
	FrameState       = "state"
	FrameSnapshot    = "snapshot"
)

const (
	// sendQueueSize is how many frames may wait on a slow client before
	// state frames for it are dropped.
	sendQueueSize = 256

	snapshotTimeout = 5 * time.Second
)

// Frame is one WebSocket message in either direction.
//
//	-> {"type":"subscribe","id":"1","paths":["default.health"],"snapshot":true}
//	<- {"type":"ack","id":"1","paths":["default.health"]}
//	<- {"type":"snapshot","id":"1","states":[{"id":"default.health.wlan.num_ap","val":3,...}]}
//	<- {"type":"state","state":{"id":"default.health.wlan.num_ap","val":4,"previous":3,...}}
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Paths are state path prefixes. A subscribe without paths follows the
	// whole tree; an unsubscribe without paths stops the stream.
	Paths    []string `json:"paths,omitempty"`
	Snapshot bool     `json:"snapshot,omitempty"`

	State  *statesync.Change  `json:"state,omitempty"`
	States []statesync.Change `json:"states,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Hub streams applied state writes to WebSocket clients. Register it with
// the sync engine as a statesync.Listener.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.shutdown()
		c.conn.Close()
		delete(h.clients, c)
	}
}

// StateChanged implements statesync.Listener. A client whose queue is
// full misses the frame.
func (h *Hub) StateChanged(_ context.Context, change statesync.Change) error {
	data, err := json.Marshal(Frame{Type: FrameState, State: &change})
	if err != nil {
		return fmt.Errorf("encoding state frame for %s: %w", change.Path, err)
	}

	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.follows(change.Path) {
			continue
		}
		if !c.enqueue(data) {
			n := h.dropped.Add(1)
			h.logger.Debug("websocket client too slow, state frame dropped",
				"subject", c.subject, "path", change.Path, "dropped_total", n)
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many state frames were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// upgrader accepts any origin. The token check has already run.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleWebSocket upgrades an authenticated request into a state stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r.Context()))
		return
	}

	c := &wsClient{
		hub:     s.hub,
		conn:    conn,
		states:  s.objects,
		subject: subjectFromContext(r.Context()),
		send:    make(chan []byte, sendQueueSize),
	}
	s.hub.add(c)

	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second
	pingEvery := time.Duration(s.wsCfg.PingInterval) * time.Second
	go c.writeLoop(pingEvery, pongWait)
	go c.readLoop(s.wsCfg, pingEvery+pongWait)
}

// wsClient is one connected stream.
type wsClient struct {
	hub     *Hub
	conn    *websocket.Conn
	states  objectstore.Browser
	subject string // token subject, empty when auth is off

	// mu guards everything below.
	mu         sync.Mutex
	send       chan []byte
	closed     bool
	subscribed bool
	paths      []string // nil while subscribed means the whole tree
}

// enqueue queues a frame without blocking. It reports false when the
// queue is full or the client is gone.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue once, which ends writeLoop.
func (c *wsClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// follows reports whether writes to path belong in this client's stream.
func (c *wsClient) follows(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return false
	}
	if c.paths == nil {
		return true
	}
	for _, p := range c.paths {
		if underPath(path, p) {
			return true
		}
	}
	return false
}

// underPath reports whether id is prefix itself or one of its descendants.
func underPath(id, prefix string) bool {
	return id == prefix || strings.HasPrefix(id, prefix+".")
}

// subscribe widens the stream. No paths means the whole tree.
func (c *wsClient) subscribe(paths []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case len(paths) == 0:
		c.paths = nil
	case c.subscribed && c.paths == nil:
		// Already following everything.
	default:
		for _, p := range paths {
			if !slices.Contains(c.paths, p) {
				c.paths = append(c.paths, p)
			}
		}
	}
	c.subscribed = true
	return slices.Clone(c.paths)
}

// unsubscribe narrows the stream. No paths, or removing the last one,
// stops it.
func (c *wsClient) unsubscribe(paths []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(paths) == 0 {
		c.subscribed = false
		c.paths = nil
		return nil
	}
	c.paths = slices.DeleteFunc(c.paths, func(p string) bool { return slices.Contains(paths, p) })
	if len(c.paths) == 0 {
		c.subscribed = false
		c.paths = nil
	}
	return slices.Clone(c.paths)
}

func (c *wsClient) readLoop(cfg config.WebSocketConfig, idle time.Duration) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		extend() //nolint:errcheck // A failed deadline surfaces as a read error
		c.handle(data)
	}
}

func (c *wsClient) writeLoop(pingEvery, writeWait time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // Surfaces on write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")) //nolint:errcheck // Best effort
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle answers one client frame.
func (c *wsClient) handle(data []byte) {
	var in Frame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(Frame{Type: FrameError, Error: "malformed frame"})
		return
	}

	switch in.Type {
	case FrameSubscribe:
		for _, p := range in.Paths {
			if err := objectstore.ValidateID(p); err != nil {
				c.reply(Frame{Type: FrameError, ID: in.ID, Error: err.Error()})
				return
			}
		}
		paths := c.subscribe(in.Paths)
		c.hub.logger.Info("websocket stream subscribed", "subject", c.subject, "paths", paths)
		c.reply(Frame{Type: FrameAck, ID: in.ID, Paths: paths})
		if in.Snapshot {
			c.sendSnapshot(in.ID, in.Paths)
		}
	case FrameUnsubscribe:
		c.reply(Frame{Type: FrameAck, ID: in.ID, Paths: c.unsubscribe(in.Paths)})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: in.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: in.ID, Error: "unknown frame type: " + in.Type})
	}
}

// sendSnapshot sends the current values under paths (everything when
// empty) as one frame, ordered by id.
func (c *wsClient) sendSnapshot(id string, paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if len(paths) == 0 {
		paths = []string{""}
	}
	seen := make(map[string]struct{})
	states := make([]statesync.Change, 0)
	for _, p := range paths {
		list, err := c.states.ListStates(ctx, p)
		if err != nil {
			c.hub.logger.Error("websocket snapshot failed", "prefix", p, "error", err)
			c.reply(Frame{Type: FrameError, ID: id, Error: "snapshot unavailable"})
			return
		}
		for _, st := range list {
			if _, dup := seen[st.ID]; dup {
				continue
			}
			seen[st.ID] = struct{}{}
			states = append(states, statesync.Change{
				Path:      st.ID,
				Value:     st.Value,
				Ack:       st.Ack,
				Timestamp: st.UpdatedAt,
			})
		}
	}
	slices.SortFunc(states, func(a, b statesync.Change) int { return strings.Compare(a.Path, b.Path) })
	c.reply(Frame{Type: FrameSnapshot, ID: id, States: states})
}

// reply queues a control frame. Replies to a gone client are discarded.
func (c *wsClient) reply(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.hub.logger.Error("encoding websocket frame", "type", f.Type, "error", err)
		return
	}
	c.enqueue(data)
}
