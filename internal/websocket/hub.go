package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Krimson/heart-rhythm-day/internal/batch"
)

// AllSessions subscribes a client to every session.
const AllSessions = "*"

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Hub fans live trace data out to websocket clients. Each client follows
// one session, chosen by the session_id query parameter.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex

	// latest measured rate per session
	lastBPM map[string]float64
	bpmMu   sync.RWMutex
}

// Client is one websocket connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type envelope struct {
	sessionID string
	payload   []byte
}

// TraceMessage is the JSON sent for every batch.
type TraceMessage struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	T0MS      int64     `json:"t0_ms"`
	T1MS      int64     `json:"t1_ms"`
	FirstTick uint64    `json:"first_tick"`
	Values    []float64 `json:"values"`
	Category  string    `json:"category"`
	Pattern   string    `json:"pattern,omitempty"`
	BPM       float64   `json:"bpm"`
}

// EventMessage reports a session lifecycle change.
type EventMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub returns a hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, 256),
		done:       make(chan struct{}),
		lastBPM:    make(map[string]float64),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client registered: %p, session: %s", client, client.sessionID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WEBSOCKET] Client unregistered: %p", client)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != AllSessions && client.sessionID != msg.sessionID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Consume makes the hub a batch.Sink.
func (h *Hub) Consume(ctx context.Context, b batch.Batch) error {
	if len(b.Points) == 0 {
		return nil
	}
	last := b.Points[len(b.Points)-1]
	msg := TraceMessage{
		Type:      "trace",
		SessionID: b.SessionID,
		T0MS:      b.T0MS,
		T1MS:      b.T1MS,
		FirstTick: b.Points[0].Tick,
		Values:    b.Values(),
		Category:  last.Cat.String(),
		Pattern:   last.Pattern,
		BPM:       h.GetLastBPM(b.SessionID),
	}
	return h.publish(ctx, b.SessionID, msg)
}

// BroadcastEvent sends a lifecycle event to the session's clients.
func (h *Hub) BroadcastEvent(sessionID, event, detail string) {
	msg := EventMessage{Type: "event", SessionID: sessionID, Event: event, Detail: detail}
	if err := h.publish(context.Background(), sessionID, msg); err != nil {
		log.Printf("[WARN] Event not broadcast: %v", err)
	}
}

func (h *Hub) publish(ctx context.Context, sessionID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[ERROR] Failed to marshal websocket message: %v", err)
		return err
	}
	select {
	case h.broadcast <- envelope{sessionID: sessionID, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		log.Printf("[WARN] Broadcast channel full, dropping message for session %s", sessionID)
		return nil
	}
}

// GetLastBPM returns the latest measured rate for a session.
func (h *Hub) GetLastBPM(sessionID string) float64 {
	h.bpmMu.RLock()
	defer h.bpmMu.RUnlock()
	return h.lastBPM[sessionID]
}

// UpdateBPM records a measured rate for a session.
func (h *Hub) UpdateBPM(sessionID string, bpm float64) {
	h.bpmMu.Lock()
	h.lastBPM[sessionID] = bpm
	h.bpmMu.Unlock()
}

// ForgetSession drops per-session state.
func (h *Hub) ForgetSession(sessionID string) {
	h.bpmMu.Lock()
	delete(h.lastBPM, sessionID)
	h.bpmMu.Unlock()
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ERROR] Failed to upgrade connection: %v", err)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = AllSessions
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}
	if !h.join(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// join registers c unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c. After Run has returned the client is already closed.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump discards client messages and notices disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ERROR] WebSocket error: %v", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[ERROR] Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
