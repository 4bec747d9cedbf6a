package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS middleware in front of /ws.
		return true
	},
}

// Backlog returns the most recent entries of a stream, oldest first.
// redis.SignalBus satisfies it.
type Backlog interface {
	StreamRecent(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// StatusFunc produces the payload of the autopilot_status frame.
type StatusFunc func() any

// Config controls what the hub relays and replays.
type Config struct {
	// Channel is the pub/sub channel carrying engine events.
	Channel string
	// Stream is replayed to new clients when a Backlog is configured.
	Stream string
	// Replay is how many stream entries a new client receives.
	Replay int
}

// client represents a single WebSocket connection.
type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	types map[domain.EventType]bool // empty means every type
	mu    sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to narrow or widen the
// event types it receives.
type subscribeMsg struct {
	Action string             `json:"action"` // "subscribe" or "unsubscribe"
	Types  []domain.EventType `json:"types"`
}

// Hub manages a set of connected WebSocket clients and broadcasts engine
// events from the signal bus to every client subscribed to their type.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	done       chan struct{} // closed when Run returns
	bus        domain.SignalBus
	backlog    Backlog
	status     StatusFunc
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

// broadcastMsg carries an event payload along with its type so the hub can
// route it only to interested clients.
type broadcastMsg struct {
	typ  domain.EventType
	data []byte
}

// NewHub creates a new WebSocket hub that bridges a SignalBus channel to
// connected WebSocket clients. backlog and status may be nil.
func NewHub(bus domain.SignalBus, backlog Backlog, status StatusFunc, cfg Config, logger *slog.Logger) *Hub {
	if cfg.Replay < 0 || cfg.Stream == "" {
		cfg.Replay = 0
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		bus:        bus,
		backlog:    backlog,
		status:     status,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
}

// Run starts the hub's main event loop. It handles client registration,
// unregistration, and message broadcasting, and exits when ctx is cancelled.
// Once it returns, new connections are closed immediately.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	msgCh, err := h.bus.Subscribe(ctx, h.cfg.Channel)
	if err != nil {
		return err
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", h.cfg.Channel))
	go h.relay(ctx, msgCh)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.wants(msg.typ) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("ws: dropping message for slow client",
							slog.String("type", string(msg.typ)),
						)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards channel payloads to the broadcast loop.
func (h *Hub) relay(ctx context.Context, msgCh <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: channel subscription closed",
					slog.String("channel", h.cfg.Channel),
				)
				return
			}
			typ, ok := eventType(data)
			if !ok {
				h.logger.Warn("ws: skipping undecodable event")
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{typ: typ, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func eventType(data []byte) (domain.EventType, bool) {
	var head struct {
		Type domain.EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == "" {
		return "", false
	}
	return head.Type, true
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. The client first receives an autopilot_status
// frame, then the replayed backlog, then live events.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		types: make(map[domain.EventType]bool),
	}

	// Queue the greeting before registering so it precedes live events.
	c.sendInitialStatus()
	c.replay(r.Context())
	if !h.add(c) {
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// add hands c to the Run loop. It reports false once the hub has stopped.
func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// remove hands c back to the Run loop; after shutdown Run has already
// closed every client.
func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. It handles
// subscription management requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Types {
			c.types[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Types {
			delete(c.types, t)
		}
	}
}

// wants reports whether the client should receive events of type t.
func (c *client) wants(t domain.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types) == 0 || c.types[t]
}

// sendInitialStatus pushes the engine status so clients can render state
// before any event arrives.
func (c *client) sendInitialStatus() {
	var payload any
	if c.hub.status != nil {
		payload = c.hub.status()
	}
	msg, err := json.Marshal(map[string]any{
		"type":    "autopilot_status",
		"payload": payload,
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// replay queues the most recent stream entries.
func (c *client) replay(ctx context.Context) {
	h := c.hub
	if h.backlog == nil || h.cfg.Replay == 0 {
		return
	}
	msgs, err := h.backlog.StreamRecent(ctx, h.cfg.Stream, h.cfg.Replay)
	if err != nil {
		h.logger.Warn("ws: backlog replay failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		select {
		case c.send <- m.Payload:
		default:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
