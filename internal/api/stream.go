package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/onesmallpr/questboard/internal/models"
)

// Stream event types
const (
	EventConnected = "connected"
	EventRefreshed = "refreshed"
	EventPong      = "pong"
)

const (
	streamSendBuffer = 16
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans catalog commits out to websocket subscribers
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*streamClient
	onChange func(n int)
}

type streamClient struct {
	id   string
	send chan []byte
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*streamClient)}
}

// OnClientsChanged registers a callback receiving the subscriber count
func (h *Hub) OnClientsChanged(fn func(n int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = fn
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CatalogCommitted broadcasts a refreshed event; it is registered as a commit hook
func (h *Hub) CatalogCommitted(snap models.Snapshot) {
	h.Broadcast(models.StreamEvent{
		Type:            EventRefreshed,
		Count:           len(snap.Quests),
		LastRefreshedAt: formatRefreshedAt(snap.LastRefreshedAt),
	})
}

// Broadcast queues event for every subscriber. Subscribers that cannot keep
// up are disconnected.
func (h *Hub) Broadcast(event models.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal stream event", "error", err)
		return
	}

	h.mu.RLock()
	var slow []string
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		slog.Warn("dropping slow stream subscriber", "client_id", id)
		h.unregister(id)
	}
}

// Close disconnects all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.unregister(id)
	}
}

func (h *Hub) register() *streamClient {
	c := &streamClient{
		id:   uuid.NewString(),
		send: make(chan []byte, streamSendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	n, fn := len(h.clients), h.onChange
	h.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return c
}

// unregister removes a client and closes its send channel exactly once
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.send)
	}
	n, fn := len(h.clients), h.onChange
	h.mu.Unlock()

	if ok && fn != nil {
		fn(n)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	client := s.hub.register()
	defer s.hub.unregister(client.id)

	slog.Info("stream subscriber connected", "client_id", client.id, "remote_addr", r.RemoteAddr)

	snap := s.catalog.Snapshot()
	hello, _ := json.Marshal(models.StreamEvent{
		Type:            EventConnected,
		Count:           len(snap.Quests),
		LastRefreshedAt: formatRefreshedAt(snap.LastRefreshedAt),
		Data:            client.id,
	})
	client.send <- hello

	done := make(chan struct{})
	var wg sync.WaitGroup

	// hub -> websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer conn.Close()

		ticker := time.NewTicker(streamPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case data, ok := <-client.send:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					slog.Debug("failed to send stream event", "error", err, "client_id", client.id)
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// websocket -> hub; clients only send keepalives
	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(streamPongWait))

		var msg models.StreamEvent
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("invalid stream message", "error", err)
			continue
		}
		if msg.Type == "ping" {
			pong, _ := json.Marshal(models.StreamEvent{Type: EventPong})
			select {
			case client.send <- pong:
			default:
			}
		}
	}

	close(done)
	wg.Wait()
	slog.Info("stream subscriber disconnected", "client_id", client.id)
}
