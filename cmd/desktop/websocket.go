package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/propsnap/backend/internal/logging"
	"github.com/propsnap/backend/internal/models"
	syncpkg "github.com/propsnap/backend/internal/sync"
	"github.com/propsnap/backend/internal/sync/netstatus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     isLocalOrigin,
}

// isLocalOrigin only admits pages served from the loopback interface.
func isLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Event types pushed to clients.
const (
	EventSyncStarted         = string(syncpkg.SyncEventStarted)
	EventSyncItemSynced      = string(syncpkg.SyncEventSynced)
	EventSyncItemFailed      = string(syncpkg.SyncEventFailed)
	EventSyncItemGaveUp      = string(syncpkg.SyncEventGaveUp)
	EventSyncCompleted       = string(syncpkg.SyncEventCompleted)
	EventNotificationCreated = "notification.created"
	EventConnectivity        = "connectivity.changed"
)

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

type outbound struct {
	eventType string
	payload   []byte
}

// WSClient represents a WebSocket client connection. A client without subscriptions
// receives every event.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub

	subMu         sync.RWMutex
	subscriptions map[string]bool
}

func (c *WSClient) wants(eventType string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[eventType]
}

// WSHub maintains active client connections and broadcasts events. It receives drain
// events from the sync engine and presents notifications.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan outbound
	unregister chan *WSClient
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	stopped    bool
}

// NewWSHub creates a new WebSocket hub and starts its loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan outbound, sendBuffer),
		unregister: make(chan *WSClient),
		done:       make(chan struct{}),
	}
	go hub.run()
	return hub
}

// Stop ends the hub loop and disconnects every client.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of connected clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WSHub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			h.stopped = true
			for id, client := range h.clients {
				close(client.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("WebSocket client disconnected", map[string]interface{}{"client": client.id, "total": total})

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if !client.wants(msg.eventType) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// add registers a client. It returns false once the hub is stopped.
func (h *WSHub) add(client *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.clients[client.id] = client
	logging.Debug("WebSocket client connected", map[string]interface{}{"client": client.id, "total": len(h.clients)})
	return true
}

// Broadcast sends an event to every interested client. It never blocks; events are
// dropped when the hub is stopped or backed up.
func (h *WSHub) Broadcast(eventType string, data interface{}) {
	bytes, err := json.Marshal(WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logging.Error("Failed to marshal WebSocket event", err, map[string]interface{}{"type": eventType})
		return
	}

	select {
	case <-h.done:
	case h.broadcast <- outbound{eventType: eventType, payload: bytes}:
	default:
		logging.Warn("WebSocket broadcast buffer full, dropping event", map[string]interface{}{"type": eventType})
	}
}

// OnSyncEvent forwards drain events to clients.
func (h *WSHub) OnSyncEvent(event syncpkg.SyncEvent) {
	h.Broadcast(string(event.Type), event)
}

// Deliver presents a notification by pushing it to clients.
func (h *WSHub) Deliver(_ context.Context, n models.Notification) error {
	h.Broadcast(EventNotificationCreated, n)
	return nil
}

// WatchConnectivity pushes connectivity changes until ctx is done.
func (h *WSHub) WatchConnectivity(ctx context.Context, monitor netstatus.Monitor) {
	updates, cancel := monitor.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case status := <-updates:
			h.Broadcast(EventConnectivity, map[string]interface{}{
				"online":    status.Online(),
				"connected": status.IsConnected,
				"reachable": status.IsInternetReachable,
			})
		}
	}
}

// readPump handles subscribe, unsubscribe and ping actions from the client.
func (c *WSClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("WebSocket read error", map[string]interface{}{"client": c.id, "error": err.Error()})
			}
			return
		}

		var msg struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			logging.Debug("Invalid WebSocket message", map[string]interface{}{"client": c.id, "error": err.Error()})
			continue
		}

		switch msg.Action {
		case "subscribe":
			c.subMu.Lock()
			for _, e := range msg.Events {
				c.subscriptions[e] = true
			}
			c.subMu.Unlock()
			c.reply(map[string]interface{}{"action": "subscribe_ack", "subscribed": msg.Events})
		case "unsubscribe":
			c.subMu.Lock()
			for _, e := range msg.Events {
				delete(c.subscriptions, e)
			}
			c.subMu.Unlock()
		case "ping":
			c.reply(map[string]interface{}{"action": "pong"})
		}
	}
}

// reply queues a direct response. It is dropped if the send buffer is full.
func (c *WSClient) reply(body map[string]interface{}) {
	body["timestamp"] = time.Now().Unix()
	bytes, err := json.Marshal(body)
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.id]; !ok {
		return
	}
	select {
	case c.send <- bytes:
	default:
	}
}

func (c *WSClient) writePump() {
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

// HandleWebSocket upgrades the request and attaches the client to the hub.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
			return
		}

		client := &WSClient{
			id:            uuid.NewString(),
			conn:          conn,
			send:          make(chan []byte, sendBuffer),
			hub:           hub,
			subscriptions: make(map[string]bool),
		}

		if !hub.add(client) {
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}
