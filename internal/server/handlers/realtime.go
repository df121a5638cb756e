package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/pkg/api"
)

const (
	// writeWait время на запись одного кадра WebSocket
	writeWait = 10 * time.Second

	// DefaultKeepAlive интервал комментариев-пингов в SSE потоке
	DefaultKeepAlive = 15 * time.Second
)

// RealtimeHandler обслуживает три транспорта клиента:
// WebSocket, SSE поток и HTTP опрос с отправкой через POST.
type RealtimeHandler struct {
	broker    Broker
	clock     clock.Clock
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	keepAlive time.Duration
}

// NewRealtimeHandler creates a handler for push transports
func NewRealtimeHandler(broker Broker, clk clock.Clock, keepAlive time.Duration, logger *zap.Logger) *RealtimeHandler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &RealtimeHandler{
		broker: broker,
		clock:  clk,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Клиенты - не браузеры, Origin не проверяем
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		keepAlive: keepAlive,
	}
}

// ServeWS обрабатывает GET /ws?clientId=.
// Отвечает pong на ping, остальные кадры рассылает другим клиентам.
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFrom(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Warn("websocket upgrade failed", zap.String("client_id", clientID), zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxBodySize)

	messages, cancel := h.broker.Subscribe(clientID)
	defer cancel()

	h.logger.Info("websocket client connected", zap.String("client_id", clientID))
	defer h.logger.Info("websocket client disconnected", zap.String("client_id", clientID))

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(h.clock.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("websocket read failed", zap.String("client_id", clientID), zap.Error(err))
				}
				return
			}
			if err := h.handleFrame(r, clientID, data, write); err != nil {
				h.logger.Debug("websocket write failed", zap.String("client_id", clientID), zap.Error(err))
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				h.clock.Now().Add(writeWait))
			return
		case msg := <-messages:
			if err := write(msg); err != nil {
				h.logger.Debug("websocket push failed", zap.String("client_id", clientID), zap.Error(err))
				return
			}
		}
	}
}

// handleFrame отвечает на heartbeat или публикует кадр
func (h *RealtimeHandler) handleFrame(r *http.Request, clientID string, data []byte, write func([]byte) error) error {
	var frame api.HeartbeatFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Warn("dropping non-JSON frame", zap.String("client_id", clientID))
		return nil
	}

	if frame.Type == api.TypePing {
		pong, err := json.Marshal(api.HeartbeatFrame{Type: api.TypePong, Timestamp: frame.Timestamp})
		if err != nil {
			return err
		}
		return write(pong)
	}

	if _, err := h.broker.Publish(r.Context(), clientID, data); err != nil {
		h.logger.Error("failed to publish frame", zap.String("client_id", clientID), zap.Error(err))
	}
	return nil
}

// ServeStream обрабатывает GET /api/v1/stream?clientId= (server-sent events)
func (h *RealtimeHandler) ServeStream(w http.ResponseWriter, r *http.Request) {
	clientID := clientIDFrom(r)
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("stream flush not supported", zap.Error(err))
		return
	}

	messages, cancel := h.broker.Subscribe(clientID)
	defer cancel()

	h.logger.Info("stream client connected", zap.String("client_id", clientID))
	defer h.logger.Info("stream client disconnected", zap.String("client_id", clientID))

	keepAlive := h.clock.After(h.keepAlive)
	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-messages:
			if err := writeEvent(w, msg); err != nil {
				return
			}
		case <-keepAlive:
			keepAlive = h.clock.After(h.keepAlive)
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent пишет SSE событие; многострочный payload разбивается на data: строки
func writeEvent(w http.ResponseWriter, payload []byte) error {
	var buf bytes.Buffer
	for _, line := range bytes.Split(payload, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// PostMessage обрабатывает POST /api/v1/messages: отправка в резервных режимах
func (h *RealtimeHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var msg api.FallbackMessage
	if err := decodeBody(w, r, &msg); err != nil {
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg.ClientID == "" {
		sendError(w, h.logger, "clientId is required", http.StatusBadRequest)
		return
	}
	if len(msg.Message) == 0 || !json.Valid(msg.Message) {
		sendError(w, h.logger, "message must be JSON", http.StatusBadRequest)
		return
	}

	if _, err := h.broker.Publish(r.Context(), msg.ClientID, msg.Message); err != nil {
		h.logger.Error("failed to publish message", zap.String("client_id", msg.ClientID), zap.Error(err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Poll обрабатывает GET /api/v1/poll?clientId=&since=
func (h *RealtimeHandler) Poll(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Без since клиент начинает с головы журнала
	since := int64(-1)
	if raw := query.Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < -1 {
			sendError(w, h.logger, "since must be an integer >= -1", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	messages, cursor, err := h.broker.Since(r.Context(), query.Get("clientId"), since)
	if err != nil {
		h.logger.Error("poll failed", zap.Error(err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, api.PollResponse{Messages: messages, Cursor: cursor}, http.StatusOK)
}

// clientIDFrom возвращает clientId запроса или случайный, если клиент его не передал
func clientIDFrom(r *http.Request) string {
	if clientID := r.URL.Query().Get("clientId"); clientID != "" {
		return clientID
	}
	return uuid.NewString()
}
