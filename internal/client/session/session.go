package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/events"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/validation"
)

// maxRememberedSent сколько отправленных payload помнит сессия для
// распознавания эха. Замещенная запись очереди могла уже уйти на сервер.
const maxRememberedSent = 16

// Имена событий сессии
const (
	EventStatus   = "status"   // payload: models.SyncStatus
	EventChange   = "change"   // payload: models.Fields
	EventConflict = "conflict" // payload: Conflict
	EventError    = "error"    // payload: error
)

//go:generate moq -out enqueuer_mock.go . Enqueuer

// Enqueuer очередь исходящих обновлений
type Enqueuer interface {
	Enqueue(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error)
}

// Conflict локальное и удаленное представления, расходящиеся по значению
type Conflict struct {
	Local  models.Fields
	Remote models.Fields
}

// Options параметры сессий
type Options struct {
	UserID   string        // подпись modifiedBy/resolvedBy
	Endpoint string        // endpoint по умолчанию для SyncWithRemote
	Debounce time.Duration // интервал тишины для UpdateDebounced
}

type notice struct {
	payload any
	event   string
}

// Session владеет единственным живым документом для одного DocumentID.
// Все мутации сериализуются mu; сетевые и дисковые ожидания
// SyncWithRemote выполняются без блокировки.
type Session struct {
	doc     *crdt.Document
	remote  *crdt.Document
	store   storage.DocumentStore
	queue   Enqueuer
	clock   clock.Clock
	logger  *zap.Logger
	emitter *events.Emitter
	onClose func()

	debounceTimer clock.Timer
	pending       models.Fields

	id           models.DocumentID
	opts         Options
	status       models.SyncStatus
	lastEnqueued []byte
	sent         []uint64 // xxhash последних поставленных payload, старые первыми

	generation  uint64 // растет на каждой локальной правке
	enqueuedGen uint64 // generation на момент последней постановки в очередь

	mu       sync.Mutex
	closed   bool
	pristine bool // только засеянный {id}, без правок и загруженного снимка
}

// ID возвращает идентификатор документа
func (s *Session) ID() models.DocumentID {
	return s.id
}

// Status возвращает текущий статус синхронизации
func (s *Session) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// View возвращает плоское локальное представление
func (s *Session) View() models.Fields {
	return s.doc.View()
}

// RemoteView возвращает удаленное представление при CONFLICT, иначе nil
func (s *Session) RemoteView() models.Fields {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil {
		return nil
	}
	return s.remote.View()
}

// Subscribe подписывает handler на событие сессии
func (s *Session) Subscribe(event string, handler events.Handler) (cancel func()) {
	return s.emitter.Subscribe(event, handler)
}

// EncodeForTransmission возвращает полное состояние документа
func (s *Session) EncodeForTransmission() ([]byte, error) {
	return s.doc.Encode()
}

// Update применяет поля одной транзакцией, проставляет modifiedAt/modifiedBy,
// сохраняет снимок и переводит статус в UNSYNCED.
func (s *Session) Update(ctx context.Context, fields models.Fields) error {
	if err := checkFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	var out []notice
	err := s.updateLocked(ctx, fields, &out)
	s.mu.Unlock()

	s.emit(out)
	return err
}

func (s *Session) updateLocked(ctx context.Context, fields models.Fields, out *[]notice) error {
	if len(fields) == 0 {
		return nil
	}

	modifiedAt := models.String(s.clock.Now().UTC().Format(time.RFC3339))
	s.doc.Transact(func(tx *crdt.Txn) {
		for name, value := range fields {
			tx.Set(name, value)
		}
		tx.Set(models.FieldModifiedAt, modifiedAt)
		tx.Set(models.FieldModifiedBy, models.String(s.opts.UserID))
	})
	s.generation++
	s.pristine = false

	if err := s.persistLocked(ctx); err != nil {
		s.failLocked("update", err, out)
		return err
	}

	s.setStatusLocked(models.StatusUnsynced, out)
	*out = append(*out, notice{event: EventChange, payload: s.doc.View()})
	return nil
}

// UpdateDebounced накапливает поля и применяет их одной транзакцией после
// интервала тишины. Каждый вызов отменяет и перезапускает таймер.
func (s *Session) UpdateDebounced(fields models.Fields) error {
	if err := checkFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	if s.pending == nil {
		s.pending = make(models.Fields, len(fields))
	}
	for name, value := range fields {
		s.pending[name] = value.Clone()
	}

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = s.clock.AfterFunc(s.opts.Debounce, s.flushDebounced)

	return nil
}

// flushDebounced применяет накопленные поля по срабатыванию таймера
func (s *Session) flushDebounced() {
	s.mu.Lock()
	if s.closed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	fields := s.pending
	s.pending = nil
	s.debounceTimer = nil

	var out []notice
	err := s.updateLocked(context.Background(), fields, &out)
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("debounced update failed", zap.String("document_id", string(s.id)), zap.Error(err))
	}
	s.emit(out)
}

// ReceiveRemote сравнивает удаленное состояние с локальным.
// Совпадение по значению - слияние и SYNCED; расхождение - CONFLICT без
// изменения локального документа. Битые байты отбрасываются, статус не меняется.
func (s *Session) ReceiveRemote(ctx context.Context, update []byte) error {
	remote, err := crdt.Decode(update, "")
	if err != nil {
		s.logger.Warn("dropping malformed remote update",
			zap.String("document_id", string(s.id)),
			zap.Int("size", len(update)),
			zap.Error(err),
		)
		s.emitter.Emit(EventError, err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	var out []notice
	local := s.doc.View()
	remoteView := remote.View()

	if s.pristine || local.Equal(remoteView) {
		err = s.adoptLocked(ctx, remote, &out)
	} else {
		s.remote = remote
		s.setStatusLocked(models.StatusConflict, &out)
		out = append(out, notice{event: EventConflict, payload: Conflict{Local: local, Remote: remoteView}})
		s.logger.Info("conflict detected",
			zap.String("document_id", string(s.id)),
			zap.Strings("local_fields", local.Keys()),
			zap.Strings("remote_fields", remoteView.Keys()),
		)
	}
	s.mu.Unlock()

	s.emit(out)
	return err
}

// adoptLocked сливает удаленное состояние, совпадающее с локальным
func (s *Session) adoptLocked(ctx context.Context, remote *crdt.Document, out *[]notice) error {
	changed := s.doc.Merge(remote) > 0
	s.remote = nil
	s.pristine = false

	if err := s.persistLocked(ctx); err != nil {
		s.failLocked("receive remote", err, out)
		return err
	}

	s.setStatusLocked(models.StatusSynced, out)
	if changed {
		*out = append(*out, notice{event: EventChange, payload: s.doc.View()})
	}
	return nil
}

// ResolveConflict заменяет живые поля на fields, проставляет
// modifiedAt/modifiedBy/resolvedAt/resolvedBy и синхронизирует результат.
func (s *Session) ResolveConflict(ctx context.Context, fields models.Fields) error {
	if err := checkFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	var out []notice

	// Сначала учитываем удаленное состояние, чтобы решение было новее его записей
	if s.remote != nil {
		s.doc.Merge(s.remote)
		s.remote = nil
	}

	now := models.String(s.clock.Now().UTC().Format(time.RFC3339))
	user := models.String(s.opts.UserID)
	s.doc.Transact(func(tx *crdt.Txn) {
		tx.Clear()
		tx.Set(models.FieldID, models.String(string(s.id)))
		for name, value := range fields {
			tx.Set(name, value)
		}
		tx.Set(models.FieldModifiedAt, now)
		tx.Set(models.FieldModifiedBy, user)
		tx.Set(models.FieldResolvedAt, now)
		tx.Set(models.FieldResolvedBy, user)
	})
	s.generation++
	s.pristine = false

	if err := s.persistLocked(ctx); err != nil {
		s.failLocked("resolve conflict", err, &out)
		s.mu.Unlock()
		s.emit(out)
		return err
	}

	s.setStatusLocked(models.StatusUnsynced, &out)
	out = append(out, notice{event: EventChange, payload: s.doc.View()})
	s.mu.Unlock()
	s.emit(out)

	return s.SyncWithRemote(ctx, "")
}

// SyncWithRemote ставит текущее состояние в очередь доставки на endpoint
// (пустой - endpoint из Options). SYNCED выставляется после успешной
// постановки, если за время ожидания не было локальных правок.
func (s *Session) SyncWithRemote(ctx context.Context, endpoint string) error {
	if endpoint == "" {
		endpoint = s.opts.Endpoint
	}
	if endpoint == "" {
		return ErrNoEndpoint
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	if s.status == models.StatusConflict {
		s.mu.Unlock()
		return ErrUnresolvedConflict
	}

	var out []notice
	payload, err := s.doc.Encode()
	if err != nil {
		s.failLocked("sync", err, &out)
		s.mu.Unlock()
		s.emit(out)
		return err
	}
	gen := s.generation
	s.lastEnqueued = payload
	s.enqueuedGen = gen
	s.rememberSentLocked(payload)
	s.setStatusLocked(models.StatusSyncing, &out)
	s.mu.Unlock()
	s.emit(out)
	out = nil

	_, err = s.queue.Enqueue(ctx, &models.QueueEntry{
		DocumentID: s.id,
		Endpoint:   endpoint,
		Payload:    payload,
		EnqueuedAt: s.clock.Now(),
	})

	s.mu.Lock()
	switch {
	case err != nil:
		s.failLocked("sync", err, &out)
	case s.generation != gen:
		// Локальная правка во время постановки: статус уже UNSYNCED
	case s.status == models.StatusSyncing:
		s.setStatusLocked(models.StatusSynced, &out)
	}
	s.mu.Unlock()
	s.emit(out)

	return err
}

// HandleDelivered подтверждение доставки записи очереди.
// Устаревший payload после локальной правки статус не меняет.
func (s *Session) HandleDelivered(entry *models.QueueEntry) {
	s.mu.Lock()
	var out []notice
	if s.isCurrentLocked(entry) && (s.status == models.StatusFailed || s.status == models.StatusSyncing) {
		s.setStatusLocked(models.StatusSynced, &out)
	}
	s.mu.Unlock()
	s.emit(out)
}

// HandleFailed неуспешная доставка записи очереди: FAILED для текущего payload
func (s *Session) HandleFailed(entry *models.QueueEntry, cause error) {
	s.mu.Lock()
	var out []notice
	if s.isCurrentLocked(entry) && (s.status == models.StatusSynced || s.status == models.StatusSyncing) {
		s.logger.Warn("delivery failed",
			zap.String("document_id", string(s.id)),
			zap.Int("attempts", entry.Attempts),
			zap.Error(cause),
		)
		s.setStatusLocked(models.StatusFailed, &out)
		out = append(out, notice{event: EventError, payload: cause})
	}
	s.mu.Unlock()
	s.emit(out)
}

// IsOwnUpdate сообщает, совпадает ли update с одним из последних payload,
// поставленных этой сессией в очередь. Так отличается эхо собственной
// доставки от правок того же пользователя на другом устройстве.
func (s *Session) IsOwnUpdate(update []byte) bool {
	sum := xxhash.Sum64(update)

	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.sent, sum)
}

func (s *Session) rememberSentLocked(payload []byte) {
	if len(s.sent) == maxRememberedSent {
		s.sent = slices.Delete(s.sent, 0, 1)
	}
	s.sent = append(s.sent, xxhash.Sum64(payload))
}

func (s *Session) isCurrentLocked(entry *models.QueueEntry) bool {
	return !s.closed &&
		s.enqueuedGen == s.generation &&
		bytes.Equal(entry.Payload, s.lastEnqueued)
}

// Close завершает сессию. Накопленные debounce-правки применяются,
// отдельного flush нет: каждая мутация уже сохранена.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	var out []notice
	var err error
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
	if len(s.pending) > 0 {
		err = s.updateLocked(context.Background(), s.pending, &out)
		s.pending = nil
	}
	s.closed = true
	s.mu.Unlock()

	s.emit(out)
	if s.onClose != nil {
		s.onClose()
	}
	return err
}

func (s *Session) persistLocked(ctx context.Context) error {
	data, err := s.doc.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	return s.store.Put(ctx, &models.Snapshot{
		ID:        s.id,
		Data:      data,
		UpdatedAt: s.clock.Now(),
	})
}

func (s *Session) setStatusLocked(status models.SyncStatus, out *[]notice) {
	if s.status == status {
		return
	}
	s.logger.Debug("status changed",
		zap.String("document_id", string(s.id)),
		zap.String("from", string(s.status)),
		zap.String("to", string(status)),
	)
	s.status = status
	*out = append(*out, notice{event: EventStatus, payload: status})
}

func (s *Session) failLocked(op string, err error, out *[]notice) {
	var storageErr *storage.StorageError
	if errors.As(err, &storageErr) {
		s.logger.Error("storage failure", zap.String("document_id", string(s.id)), zap.String("op", op), zap.Error(err))
	} else {
		s.logger.Error("session operation failed", zap.String("document_id", string(s.id)), zap.String("op", op), zap.Error(err))
	}
	s.setStatusLocked(models.StatusFailed, out)
	*out = append(*out, notice{event: EventError, payload: err})
}

// emit рассылает уведомления вне блокировки сессии
func (s *Session) emit(out []notice) {
	for _, n := range out {
		s.emitter.Emit(n.event, n.payload)
	}
}

func checkFields(fields models.Fields) error {
	for name, value := range fields {
		if name == models.FieldID {
			return fmt.Errorf("%w: %s", ErrReservedField, name)
		}
		if err := validation.ValidateFieldName(name); err != nil {
			return err
		}
		if err := validation.ValidateValue(value); err != nil {
			return fmt.Errorf("%w: field %s: %v", ErrInvalidValue, name, err)
		}
	}
	return nil
}
