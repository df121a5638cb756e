package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/events"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/validation"
)

// Manager гарантирует не более одной живой сессии на DocumentID в процессе
// и маршрутизирует результаты доставки и входящие обновления в сессии.
type Manager struct {
	store    storage.DocumentStore
	queue    Enqueuer
	clock    clock.Clock
	logger   *zap.Logger
	sessions map[models.DocumentID]*Session
	nodeID   string
	opts     Options
	mu       sync.Mutex
}

// NewManager создает менеджер сессий для реплики nodeID
func NewManager(store storage.DocumentStore, queue Enqueuer, clk clock.Clock, nodeID string, opts Options, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		queue:    queue,
		clock:    clk,
		logger:   logger,
		sessions: make(map[models.DocumentID]*Session),
		nodeID:   nodeID,
		opts:     opts,
	}
}

// Open загружает сохраненный снимок (статус SYNCED) или создает документ
// только с полем id (статус UNSYNCED, сразу сохраняется).
func (m *Manager) Open(ctx context.Context, id models.DocumentID) (*Session, error) {
	if err := validation.ValidateDocumentID(string(id)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, id)
	}

	s := &Session{
		store:   m.store,
		queue:   m.queue,
		clock:   m.clock,
		logger:  m.logger.With(zap.String("document_id", string(id))),
		emitter: events.New(m.logger),
		id:      id,
		opts:    m.opts,
	}

	snapshot, err := m.store.Get(ctx, id)
	switch {
	case err == nil:
		doc, err := crdt.Decode(snapshot.Data, m.nodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
		}
		s.doc = doc
		s.status = models.StatusSynced
	case errors.Is(err, storage.ErrSnapshotNotFound):
		s.doc = crdt.NewDocument(m.nodeID)
		s.doc.Transact(func(tx *crdt.Txn) {
			tx.Set(models.FieldID, models.String(string(id)))
		})
		if err := s.persistLocked(ctx); err != nil {
			return nil, err
		}
		s.status = models.StatusUnsynced
		s.pristine = true
	default:
		return nil, err
	}

	s.onClose = func() { m.release(id, s) }
	m.sessions[id] = s

	m.logger.Debug("session opened",
		zap.String("document_id", string(id)),
		zap.String("status", string(s.status)),
	)

	return s, nil
}

// Get возвращает открытую сессию
func (m *Manager) Get(id models.DocumentID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions возвращает все открытые сессии
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// CloseAll закрывает все сессии
func (m *Manager) CloseAll() error {
	var errs []error
	for _, s := range m.Sessions() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) release(id models.DocumentID, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
}

// Delivered маршрутизирует подтверждение доставки в сессию документа
func (m *Manager) Delivered(ctx context.Context, entry *models.QueueEntry) {
	if s, ok := m.Get(entry.DocumentID); ok {
		s.HandleDelivered(entry)
	}
}

// Failed маршрутизирует ошибку доставки в сессию документа
func (m *Manager) Failed(ctx context.Context, entry *models.QueueEntry, cause error) {
	if s, ok := m.Get(entry.DocumentID); ok {
		s.HandleFailed(entry, cause)
	}
}

// IsOwnUpdate сообщает, является ли update эхом payload, отправленного
// открытой сессией документа id
func (m *Manager) IsOwnUpdate(id models.DocumentID, update []byte) bool {
	s, ok := m.Get(id)
	return ok && s.IsOwnUpdate(update)
}

// ReceiveRemote передает входящее обновление открытой сессии.
// Обновления для неоткрытых документов пропускаются.
func (m *Manager) ReceiveRemote(ctx context.Context, id models.DocumentID, update []byte) error {
	s, ok := m.Get(id)
	if !ok {
		m.logger.Debug("skipping update for closed document", zap.String("document_id", string(id)))
		return nil
	}
	return s.ReceiveRemote(ctx, update)
}
