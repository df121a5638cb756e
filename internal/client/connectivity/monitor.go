// Package connectivity отслеживает доступность сервера и запускает
// разбор очереди ровно один раз на каждом переходе в доступное состояние.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/client/queue"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/events"
)

// EventTransition payload: bool, новое состояние доступности
const EventTransition = "transition"

//go:generate moq -out drainer_mock.go . Drainer

// Drainer разбирает очередь доставки
type Drainer interface {
	Process(ctx context.Context) (queue.Result, error)
}

// Probe проверка доступности
type Probe interface {
	Check(ctx context.Context) error
}

// ProbeFunc адаптер функции к Probe
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// Monitor следит за доступностью по опросу Probe и внешним сигналам Notify
type Monitor struct {
	probe    Probe
	drainer  Drainer
	clock    clock.Clock
	logger   *zap.Logger
	emitter  *events.Emitter
	interval time.Duration
	mu       sync.Mutex
	// reachable последнее известное состояние; начальное - недоступен
	reachable bool
}

// New создает монитор с периодом опроса interval
func New(probe Probe, drainer Drainer, clk clock.Clock, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		drainer:  drainer,
		clock:    clk,
		logger:   logger,
		emitter:  events.New(logger),
		interval: interval,
	}
}

// Subscribe подписка на EventTransition
func (m *Monitor) Subscribe(event string, handler events.Handler) (cancel func()) {
	return m.emitter.Subscribe(event, handler)
}

// Reachable возвращает последнее известное состояние
func (m *Monitor) Reachable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reachable
}

// Run опрашивает Probe до отмены ctx
func (m *Monitor) Run(ctx context.Context) error {
	for {
		m.Poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.interval):
		}
	}
}

// Poll выполняет одну проверку доступности
func (m *Monitor) Poll(ctx context.Context) {
	err := m.probe.Check(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("server unreachable", zap.Error(err))
	}
	m.Notify(ctx, err == nil)
}

// Notify принимает сигнал доступности (из опроса или извне).
// Повторный сигнал того же состояния ничего не делает.
func (m *Monitor) Notify(ctx context.Context, reachable bool) {
	m.mu.Lock()
	changed := m.reachable != reachable
	m.reachable = reachable
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("connectivity changed", zap.Bool("reachable", reachable))
	m.emitter.Emit(EventTransition, reachable)

	if !reachable {
		return
	}

	result, err := m.drainer.Process(ctx)
	if err != nil {
		m.logger.Warn("queue drain failed", zap.Error(err))
		return
	}
	m.logger.Info("queue drained on reconnect",
		zap.Int("delivered", result.Delivered),
		zap.Int("failed", result.Failed),
		zap.Int("remaining", result.Remaining),
	)
}
