// Package queue доставляет исходящие обновления из durable очереди.
// Записи обрабатываются строго в порядке постановки; неудачные остаются
// на месте до следующего запуска. Backoff на этом уровне нет.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out deliverer_mock.go . Deliverer
//go:generate moq -out listener_mock.go . Listener

// Deliverer отправляет одну запись получателю
type Deliverer interface {
	Deliver(ctx context.Context, entry *models.QueueEntry) error
}

// Listener получает результаты доставки
type Listener interface {
	Delivered(ctx context.Context, entry *models.QueueEntry)
	Failed(ctx context.Context, entry *models.QueueEntry, cause error)
}

// Result итог одного прохода по очереди
type Result struct {
	Delivered  int // доставлено и удалено
	Failed     int // осталось в очереди с ошибкой
	Superseded int // доставлено, но payload успел смениться
	Remaining  int // записей в очереди после прохода
}

// Queue durable очередь доставки
type Queue struct {
	storage   storage.QueueStorage
	metadata  storage.MetadataStorage
	deliverer Deliverer
	clock     clock.Clock
	logger    *zap.Logger
	group     singleflight.Group
	listeners []Listener
	mu        sync.RWMutex
}

// New создает очередь поверх хранилища
func New(store storage.QueueStorage, metadata storage.MetadataStorage, deliverer Deliverer, clk clock.Clock, logger *zap.Logger) *Queue {
	return &Queue{
		storage:   store,
		metadata:  metadata,
		deliverer: deliverer,
		clock:     clk,
		logger:    logger,
	}
}

// AddListener регистрирует получателя результатов доставки
func (q *Queue) AddListener(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

// Enqueue сохраняет запись и возвращается после записи на диск (не после доставки).
// Ожидающая запись того же документа заменяется на месте.
func (q *Queue) Enqueue(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error) {
	if entry.DocumentID == "" {
		return nil, fmt.Errorf("queue entry without document id")
	}
	if entry.Endpoint == "" {
		return nil, fmt.Errorf("queue entry %s without endpoint", entry.DocumentID)
	}
	if entry.EnqueuedAt.IsZero() {
		entry.EnqueuedAt = q.clock.Now()
	}

	stored, err := q.storage.Enqueue(ctx, entry)
	if err != nil {
		return nil, err
	}

	q.logger.Debug("entry enqueued",
		zap.String("entry_id", stored.ID),
		zap.String("document_id", string(stored.DocumentID)),
		zap.Int("revision", stored.Revision),
		zap.Int("size", len(stored.Payload)),
	)

	return stored, nil
}

// Pending возвращает число ожидающих записей
func (q *Queue) Pending(ctx context.Context) (int, error) {
	return q.storage.Pending(ctx)
}

// Entries возвращает ожидающие записи в порядке доставки
func (q *Queue) Entries(ctx context.Context) ([]*models.QueueEntry, error) {
	return q.storage.List(ctx)
}

// Process проходит очередь в порядке постановки. Параллельные вызовы
// присоединяются к уже идущему проходу.
func (q *Queue) Process(ctx context.Context) (Result, error) {
	v, err, shared := q.group.Do("drain", func() (any, error) {
		return q.drain(ctx)
	})
	if shared {
		q.logger.Debug("joined in-flight queue drain")
	}
	if v == nil {
		return Result{}, err
	}
	return v.(Result), err
}

func (q *Queue) drain(ctx context.Context) (Result, error) {
	var result Result

	entries, err := q.storage.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list queue: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			// замещенные записи остаются в очереди с новым payload
			result.Remaining = len(entries) - result.Delivered
			return result, err
		}

		if err := q.deliverer.Deliver(ctx, entry); err != nil {
			result.Failed++
			q.fail(ctx, entry, err)
			continue
		}

		removed, err := q.storage.Remove(ctx, entry.ID, entry.Revision)
		if err != nil {
			// Доставлено, но не удалено: запись уйдет повторно (at-least-once)
			q.logger.Error("failed to remove delivered entry", zap.String("entry_id", entry.ID), zap.Error(err))
		}
		if removed {
			result.Delivered++
		} else {
			result.Superseded++
		}

		if q.metadata != nil {
			if err := q.metadata.SaveLastDelivery(ctx, entry.DocumentID, q.clock.Now()); err != nil {
				q.logger.Warn("failed to record delivery time", zap.String("document_id", string(entry.DocumentID)), zap.Error(err))
			}
		}

		q.logger.Info("entry delivered",
			zap.String("entry_id", entry.ID),
			zap.String("document_id", string(entry.DocumentID)),
			zap.Int("revision", entry.Revision),
			zap.Bool("superseded", !removed),
		)
		q.notify(func(l Listener) { l.Delivered(ctx, entry) })
	}

	remaining, err := q.storage.Pending(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to count queue: %w", err)
	}
	result.Remaining = remaining

	return result, nil
}

func (q *Queue) fail(ctx context.Context, entry *models.QueueEntry, cause error) {
	q.logger.Warn("delivery failed",
		zap.String("entry_id", entry.ID),
		zap.String("document_id", string(entry.DocumentID)),
		zap.Int("attempts", entry.Attempts+1),
		zap.Error(cause),
	)

	if err := q.storage.RecordFailure(ctx, entry.ID, entry.Revision, cause.Error()); err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Error("failed to record delivery failure", zap.String("entry_id", entry.ID), zap.Error(err))
	}
	entry.Attempts++
	entry.LastError = cause.Error()

	q.notify(func(l Listener) { l.Failed(ctx, entry, cause) })
}

func (q *Queue) notify(fn func(Listener)) {
	q.mu.RLock()
	listeners := make([]Listener, len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.RUnlock()

	for _, l := range listeners {
		fn(l)
	}
}
