// Package hub рассылает сообщения relay-сервера подключенным клиентам.
// Живые подписчики (WebSocket, SSE) получают сообщения через каналы,
// клиенты режима опроса читают тот же поток из журнала MessageStorage.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage"
)

const (
	// DefaultBuffer размер буфера канала подписчика
	DefaultBuffer = 64

	// DefaultPollLimit максимум сообщений в одном ответе опроса
	DefaultPollLimit = 100
)

type subscriber struct {
	clientID string
	ch       chan []byte
}

// Hub fan-out сообщений между клиентами
type Hub struct {
	store       storage.MessageStorage
	clock       clock.Clock
	logger      *zap.Logger
	subscribers map[string]*subscriber
	buffer      int
	mu          sync.RWMutex
}

// New creates a hub backed by the message log store
func New(store storage.MessageStorage, clk clock.Clock, logger *zap.Logger) *Hub {
	return &Hub{
		store:       store,
		clock:       clk,
		logger:      logger,
		subscribers: make(map[string]*subscriber),
		buffer:      DefaultBuffer,
	}
}

// Subscribe registers a live subscriber for clientID.
// Messages published by the same clientID are not delivered back.
// The returned cancel func must be called once the subscriber goes away.
func (h *Hub) Subscribe(clientID string) (<-chan []byte, func()) {
	id := uuid.NewString()
	sub := &subscriber{
		clientID: clientID,
		ch:       make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	h.subscribers[id] = sub
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug("subscriber added",
		zap.String("client_id", clientID),
		zap.Int("subscribers", count))

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}

	return sub.ch, cancel
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish appends payload to the log and pushes it to every live subscriber
// except those of origin. Slow subscribers lose the message and can catch
// up through polling.
func (h *Hub) Publish(ctx context.Context, origin string, payload []byte) (int64, error) {
	if !json.Valid(payload) {
		return 0, fmt.Errorf("publish: payload is not valid JSON")
	}

	seq, err := h.store.AppendMessage(ctx, &models.RelayMessage{
		CreatedAt: h.clock.Now(),
		Origin:    origin,
		Payload:   payload,
	})
	if err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		if origin != "" && sub.clientID == origin {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			h.logger.Warn("subscriber buffer full, message dropped",
				zap.String("client_id", sub.clientID),
				zap.Int64("seq", seq))
		}
	}

	return seq, nil
}

// Since returns log messages after cursor for a polling client and the new cursor.
// A negative cursor starts the client at the head of the log without history.
func (h *Hub) Since(ctx context.Context, clientID string, cursor int64) ([]json.RawMessage, int64, error) {
	if cursor < 0 {
		latest, err := h.store.LatestSeq(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("poll: %w", err)
		}
		return []json.RawMessage{}, latest, nil
	}

	// Сообщения самого клиента отфильтрованы, но курсор идет по всему журналу
	stored, err := h.store.MessagesSince(ctx, cursor, "", DefaultPollLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("poll: %w", err)
	}

	messages := make([]json.RawMessage, 0, len(stored))
	next := cursor
	for _, msg := range stored {
		next = msg.Seq
		if clientID != "" && msg.Origin == clientID {
			continue
		}
		messages = append(messages, json.RawMessage(msg.Payload))
	}

	return messages, next, nil
}

// Prune deletes log messages older than retention
func (h *Hub) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return h.store.PruneMessages(ctx, h.clock.Now().Add(-retention))
}
