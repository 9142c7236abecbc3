package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/auth"
	"github.com/vyrodovalexey/doggos/internal/model"
	"github.com/vyrodovalexey/doggos/internal/session"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	inboundBuffer  = 8
)

// Close reasons sent to live view clients.
const (
	closeReasonShutdown     = "server shutting down"
	closeReasonSessionEnded = "session ended"
)

// endReasonClientLeft is logged when the read side stopped first; no close
// frame is sent in that case.
const endReasonClientLeft = "client left"

// LiveViewHandler streams the caller's derived roster view over a WebSocket.
// A fresh view is pushed on connect, after every roster change and after
// every query message from the client.
type LiveViewHandler struct {
	upgrader websocket.Upgrader
	sessions *session.Manager
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewLiveViewHandler creates a new LiveViewHandler instance.
func NewLiveViewHandler(sessions *session.Manager, logger *zap.Logger) *LiveViewHandler {
	return &LiveViewHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		sessions: sessions,
		logger:   logger,
		clients:  make(map[*websocket.Conn]context.CancelFunc),
	}
}

// RegisterRoutes registers the WebSocket routes with the router.
func (h *LiveViewHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleWebSocket).Methods(http.MethodGet)
}

// HandleWebSocket upgrades the request and starts streaming views filtered
// by the ?q= query.
//
//nolint:contextcheck // the stream outlives the upgrade request
func (h *LiveViewHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.For(auth.SubjectFrom(r.Context()))
	query := r.URL.Query().Get("q")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		h.sendClose(conn, closeReasonShutdown)
		_ = conn.Close()
		return
	}
	h.clients[conn] = cancel
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Info("live view client connected",
		zap.String("subject", s.Subject),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	inbound := make(chan model.WebSocketMessage, inboundBuffer)
	go h.writePump(ctx, cancel, conn, s, query, inbound)
	go h.readPump(ctx, cancel, conn, inbound)
}

// readPump decodes client frames and forwards them to writePump, which owns
// all writes on the connection.
func (h *LiveViewHandler) readPump(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	inbound chan<- model.WebSocketMessage,
) {
	defer func() {
		cancel()
		h.removeClient(conn)
		h.wg.Done()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Debug("failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		msg := decodeClientMessage(data)
		select {
		case inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// decodeClientMessage turns a client frame into a query message, or an error
// message to echo back when the frame is not understood.
func decodeClientMessage(data []byte) model.WebSocketMessage {
	var msg model.WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return model.NewErrorMessage("malformed message")
	}
	if msg.Type != model.WSMessageTypeQuery {
		return model.NewErrorMessage("unsupported message type: " + msg.Type)
	}
	return msg
}

// writePump pushes views until the client leaves, the session ends or the
// handler shuts down.
func (h *LiveViewHandler) writePump(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	s *session.Session,
	query string,
	inbound <-chan model.WebSocketMessage,
) {
	changes, unsubscribe := s.Roster.Subscribe()
	pingTicker := time.NewTicker(pingPeriod)
	reason := "write failed"

	defer func() {
		pingTicker.Stop()
		unsubscribe()
		cancel()
		// Unblocks readPump.
		_ = conn.Close()
		h.logger.Debug("live view stream ended",
			zap.String("subject", s.Subject),
			zap.String("reason", reason),
		)
		h.wg.Done()
	}()

	if err := h.sendView(conn, s, query); err != nil {
		h.logger.Debug("failed to send view", zap.Error(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			reason = endReasonClientLeft
			if h.shuttingDown() {
				reason = closeReasonShutdown
				h.sendClose(conn, reason)
			}
			return
		case _, ok := <-changes:
			if !ok {
				reason = closeReasonSessionEnded
				h.sendClose(conn, reason)
				return
			}
			if err := h.sendView(conn, s, query); err != nil {
				h.logger.Debug("failed to send view", zap.Error(err))
				return
			}
		case msg := <-inbound:
			var err error
			if msg.Type == model.WSMessageTypeQuery {
				query = msg.Query
				err = h.sendView(conn, s, query)
			} else {
				err = h.send(conn, msg)
			}
			if err != nil {
				h.logger.Debug("failed to answer client message", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *LiveViewHandler) sendView(conn *websocket.Conn, s *session.Session, query string) error {
	return h.send(conn, model.NewViewMessage(currentView(s.Roster, query)))
}

func (h *LiveViewHandler) send(conn *websocket.Conn, msg model.WebSocketMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

// sendClose writes a normal-closure frame with reason.
func (h *LiveViewHandler) sendClose(conn *websocket.Conn, reason string) {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient forgets a client once its read side has stopped.
func (h *LiveViewHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.logger.Info("live view client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

func (h *LiveViewHandler) shuttingDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

// ClientCount returns the number of connected live view clients.
func (h *LiveViewHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// CloseAllConnections sends a close frame to every client and waits for
// their pumps to exit. Later upgrades are closed immediately.
func (h *LiveViewHandler) CloseAllConnections() {
	h.mu.Lock()
	h.closed = true
	for _, cancel := range h.clients {
		cancel()
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.logger.Info("all live view connections closed")
}
