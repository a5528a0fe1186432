package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"scholarchat-backend/internal/models"
	"scholarchat-backend/internal/relay"
)

const (
	maxMessageBytes = 1 << 20
	queuedRequests  = 4
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type TurnRunner interface {
	Run(ctx context.Context, requestID string, req models.ChatRequest, emit relay.EmitFunc) error
}

type inbound struct {
	req models.ChatRequest
	err error
}

// Hub serves chat turns over WebSocket. Every inbound text frame is a chat
// request; every event of the turn goes back as one JSON text frame. Turns on
// one socket run in order.
type Hub struct {
	mu          sync.Mutex
	turns       TurnRunner
	connections map[*websocket.Conn]context.CancelFunc
	log         *slog.Logger
}

func NewHub(turns TurnRunner, logger *slog.Logger) *Hub {
	return &Hub{
		turns:       turns,
		connections: make(map[*websocket.Conn]context.CancelFunc),
		log:         logger,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "err", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	h.registerConnection(conn, cancel)
	defer h.unregisterConnection(conn)

	requests := make(chan inbound, queuedRequests)
	go h.readLoop(ctx, cancel, conn, requests)

	for msg := range requests {
		emit := func(e models.StreamEvent) error { return conn.WriteJSON(e) }

		if msg.err != nil {
			if err := emit(models.ErrorEvent("invalid request: " + msg.err.Error())); err != nil {
				return
			}
			continue
		}
		if strings.TrimSpace(msg.req.Message) == "" {
			if err := emit(models.ErrorEvent("message is required")); err != nil {
				return
			}
			continue
		}

		requestID := uuid.NewString()
		if err := h.turns.Run(ctx, requestID, msg.req, emit); err != nil {
			h.log.Info("WebSocket turn ended early", "request_id", requestID, "err", err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// readLoop decodes frames until the peer goes away, then cancels the turn in
// flight.
func (h *Hub) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- inbound) {
	defer close(out)
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("WebSocket read failed", "err", err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg.req); err != nil {
			msg.err = errors.New("malformed JSON")
		}

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) registerConnection(conn *websocket.Conn, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[conn] = cancel
	h.log.Info("WebSocket connected", "remote", conn.RemoteAddr().String(), "total", len(h.connections))
}

func (h *Hub) unregisterConnection(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, ok := h.connections[conn]; ok {
		cancel()
		delete(h.connections, conn)
	}
	conn.Close()
	h.log.Info("WebSocket disconnected", "remote", conn.RemoteAddr().String())
}

// Count returns the number of open sockets.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// CloseAll cancels every turn in flight and closes every socket.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, cancel := range h.connections {
		cancel()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
