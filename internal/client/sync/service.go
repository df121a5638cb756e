// Package sync связывает сессии, очередь доставки, монитор доступности
// и транспорт в работающий клиент: автосинхронизация по таймеру и
// применение обновлений, пришедших по каналу реального времени.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/client/connectivity"
	"github.com/iudanet/docsync/internal/client/queue"
	"github.com/iudanet/docsync/internal/client/session"
	"github.com/iudanet/docsync/internal/client/transport"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// Options параметры автосинхронизации
type Options struct {
	Endpoint string
	Interval time.Duration
	AutoSync bool
}

// SyncResult итог одного прохода синхронизации
type SyncResult struct {
	Enqueued int // сессий поставлено в очередь
	Skipped  int // сессий в CONFLICT
	Failed   int // ошибок постановки
	Delivery queue.Result
	Drained  bool // очередь разбиралась в этом проходе
}

// Service orchestrates the client components.
// monitor and transport are optional.
type Service struct {
	sessions  *session.Manager
	queue     *queue.Queue
	monitor   *connectivity.Monitor
	transport *transport.Manager
	clock     clock.Clock
	logger    *zap.Logger
	opts      Options
}

// NewService creates a new sync service and subscribes sessions to delivery results
func NewService(
	sessions *session.Manager,
	q *queue.Queue,
	monitor *connectivity.Monitor,
	tr *transport.Manager,
	clk clock.Clock,
	opts Options,
	logger *zap.Logger,
) *Service {
	s := &Service{
		sessions:  sessions,
		queue:     q,
		monitor:   monitor,
		transport: tr,
		clock:     clk,
		logger:    logger,
		opts:      opts,
	}

	q.AddListener(sessions)
	if tr != nil {
		tr.Subscribe(transport.EventMessage, s.handleMessage)
	}

	return s
}

// SyncAll ставит в очередь все открытые сессии в UNSYNCED или FAILED
// и разбирает очередь, если сервер считается доступным.
// Сессии в CONFLICT пропускаются до разрешения.
func (s *Service) SyncAll(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}

	for _, sess := range s.sessions.Sessions() {
		switch sess.Status() {
		case models.StatusUnsynced, models.StatusFailed:
		case models.StatusConflict:
			result.Skipped++
			continue
		default:
			continue
		}

		err := sess.SyncWithRemote(ctx, s.opts.Endpoint)
		switch {
		case err == nil:
			result.Enqueued++
		case errors.Is(err, session.ErrUnresolvedConflict):
			result.Skipped++
		case errors.Is(err, session.ErrSessionClosed):
		default:
			result.Failed++
			s.logger.Warn("failed to enqueue document",
				zap.String("document_id", string(sess.ID())),
				zap.Error(err),
			)
		}
	}

	if s.monitor != nil && !s.monitor.Reachable() {
		s.logger.Debug("server unreachable, delivery deferred", zap.Int("enqueued", result.Enqueued))
		return result, nil
	}

	delivery, err := s.queue.Process(ctx)
	if err != nil {
		return result, err
	}
	result.Delivery = delivery
	result.Drained = true

	s.logger.Info("sync pass completed",
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped),
		zap.Int("delivered", delivery.Delivered),
		zap.Int("remaining", delivery.Remaining),
	)

	return result, nil
}

// Run запускает монитор, транспорт и таймер автосинхронизации до отмены ctx.
// При выходе все сессии закрываются.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if s.monitor != nil {
		g.Go(func() error { return s.monitor.Run(gctx) })
	}
	if s.transport != nil {
		g.Go(func() error { return s.transport.Run(gctx) })
	}
	if s.opts.AutoSync && s.opts.Interval > 0 {
		g.Go(func() error { return s.autoSync(gctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if cerr := s.sessions.CloseAll(); cerr != nil {
		s.logger.Warn("failed to close sessions", zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}

	return err
}

func (s *Service) autoSync(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.opts.Interval):
		}

		if _, err := s.SyncAll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("auto sync failed", zap.Error(err))
		}
	}
}

// handleMessage применяет обновление из канала реального времени.
// Эхо собственной доставки распознается по содержимому: userId общий
// для всех устройств пользователя и эхо не отличает.
func (s *Service) handleMessage(payload any) {
	data, ok := payload.([]byte)
	if !ok {
		return
	}

	var msg api.PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("ignoring non-json message", zap.Error(err))
		return
	}
	if msg.Type != api.TypeUpdate || msg.PropertyID == "" {
		return
	}
	id := models.DocumentID(msg.PropertyID)
	if s.sessions.IsOwnUpdate(id, msg.Update) {
		s.logger.Debug("skipping echo of own update", zap.String("document_id", msg.PropertyID))
		return
	}

	err := s.sessions.ReceiveRemote(context.Background(), id, msg.Update)
	if err != nil {
		s.logger.Warn("failed to apply remote update",
			zap.String("document_id", msg.PropertyID),
			zap.Error(err),
		)
	}
}
