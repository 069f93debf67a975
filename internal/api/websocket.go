package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/irrigation-core/internal/auth"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/config"
	"github.com/nerrad567/irrigation-core/internal/infrastructure/logging"
	"github.com/nerrad567/irrigation-core/internal/irrigation"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Broadcast channels.
const (
	ChannelZoneTransition = "zone.transition"
	ChannelStatus         = "status"
)

const (
	wsSendBufferSize    = 256
	transitionQueueSize = 64

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is a message to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// TransitionEvent is broadcast on zone.transition.
type TransitionEvent struct {
	Zone        int                     `json:"zone"`
	On          bool                    `json:"on"`
	Reason      irrigation.Reason       `json:"reason"`
	Origin      irrigation.Origin       `json:"origin"`
	Kind        irrigation.ScheduleKind `json:"type"`
	ScheduleID  uint32                  `json:"schedule_id,omitempty"`
	DurationMin int                     `json:"duration_min"`
	ActiveCount int                     `json:"active_count"`
	At          time.Time               `json:"at,omitzero"`
}

// Hub tracks WebSocket clients and fans events out to subscribers.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]struct{}
	principal     auth.Principal
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// CORS middleware handles origins.
		return true
	},
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount(), "subject", client.principal.Subject)
}

// Unregister removes a client. Only the call that removes it closes the
// send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// Broadcast sends an event to every client subscribed to channel. Slow
// clients miss messages rather than blocking the sender.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.isSubscribed(channel) {
			client.trySend(data)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// OnZoneTransition implements irrigation.TransitionSink. It only queues;
// the relay goroutine broadcasts.
func (s *Server) OnZoneTransition(t irrigation.Transition) {
	select {
	case s.transitions <- t:
	default:
		s.logger.Warn("websocket transition queue full, dropping", "zone", t.Zone)
	}
}

// relayTransitions broadcasts each queued transition followed by the
// resulting status.
func (s *Server) relayTransitions(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.transitions:
			s.hub.Broadcast(ChannelZoneTransition, TransitionEvent{
				Zone:        t.Zone,
				On:          t.On,
				Reason:      t.Reason,
				Origin:      t.Origin,
				Kind:        t.Kind,
				ScheduleID:  t.ScheduleID,
				DurationMin: t.DurationMin,
				ActiveCount: t.ActiveCount,
				At:          t.At,
			})
			s.hub.Broadcast(ChannelStatus, s.engine.Status())
		}
	}
}

// handleWebSocket upgrades the connection. With security enabled a ticket
// from POST /auth/ws-ticket is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	principal := anonymous
	if s.secCfg.Enabled {
		ticket := r.URL.Query().Get("ticket")
		if ticket == "" {
			writeUnauthorized(w, "ticket query parameter is required")
			return
		}
		p, err := s.tickets.redeem(ticket)
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		principal = p
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
		principal:     principal,
	}
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	ping, pong := wsTimings(cfg)
	deadline := ping + pong
	//nolint:errcheck // best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ping, writeWait := wsTimings(cfg)
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.handleSubscription(msg)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *WSClient) handleSubscription(msg WSMessage) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.sendError(msg.ID, "invalid "+msg.Type+" payload")
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if msg.Type == WSTypeSubscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "subscribed"
	if msg.Type == WSTypeUnsubscribe {
		key = "unsubscribed"
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

// trySend drops the message when the buffer is full or the client has
// already gone.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
