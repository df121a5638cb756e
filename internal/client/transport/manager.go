// Package transport поддерживает один логический канал с сервером поверх
// трех уровней резервирования: WebSocket, server-sent events + POST и опрос.
// На нижний уровень переход выполняется только после исчерпания попыток,
// обратно наверх - только явным Connect.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/events"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// Имена событий менеджера
const (
	EventStateChanged      = "state_changed"      // payload: models.ConnectionState
	EventMessage           = "message"            // payload: []byte
	EventError             = "error"              // payload: error
	EventFallbackActivated = "fallback_activated" // payload: FallbackEvent
	EventLatency           = "latency"            // payload: time.Duration
)

// latencySamples размер окна измерений задержки
const latencySamples = 50

// Options параметры переподключения и heartbeat
type Options struct {
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Multiplier        float64
	MaxAttempts       int
}

// Dialers соединители по уровням. Отсутствующий уровень пропускается.
type Dialers struct {
	WebSocket Dialer
	Stream    Dialer
	Polling   Dialer
}

func (d Dialers) get(t Tier) Dialer {
	switch t {
	case TierWebSocket:
		return d.WebSocket
	case TierStream:
		return d.Stream
	case TierPolling:
		return d.Polling
	default:
		return nil
	}
}

// FallbackEvent переход на резервный уровень
type FallbackEvent struct {
	From     Tier
	To       Tier
	Failures int
}

// Stats снимок счетчиков менеджера
type Stats struct {
	State          models.ConnectionState
	Tier           Tier
	Errors         int // все ошибки транспорта с момента создания
	Attempts       int // все попытки соединения
	Failures       int // неудачи подряд на текущем уровне
	LatencySamples int
	AverageLatency time.Duration
}

// Manager менеджер соединения
type Manager struct {
	dialers Dialers
	opts    Options
	clock   clock.Clock
	logger  *zap.Logger
	emitter *events.Emitter
	latency *latencyWindow

	conn   Conn
	cancel context.CancelFunc
	done   chan struct{}
	state  models.ConnectionState
	tier   Tier

	errors   int
	attempts int
	failures int

	dispatching atomic.Int32 // обработчиков событий выполняется сейчас

	mu sync.Mutex
}

// NewManager создает менеджер. Соединение не устанавливается до Connect.
func NewManager(dialers Dialers, opts Options, clk clock.Clock, logger *zap.Logger) *Manager {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Manager{
		dialers: dialers,
		opts:    opts,
		clock:   clk,
		logger:  logger,
		emitter: events.New(logger),
		latency: newLatencyWindow(latencySamples),
		state:   models.StateDisconnected,
	}
}

// Subscribe подписка на события менеджера. Обработчики вызываются синхронно
// в горутинах цикла соединения. Из обработчика можно вызывать Connect и
// Disconnect: в этом случае они не ждут завершения прежнего цикла.
func (m *Manager) Subscribe(event string, handler events.Handler) (cancel func()) {
	return m.emitter.Subscribe(event, handler)
}

// Connect (пере)запускает соединение с первого уровня.
// Цикл соединения живет до отмены ctx или Disconnect.
func (m *Manager) Connect(ctx context.Context) {
	m.stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	m.mu.Lock()
	m.cancel = cancel
	m.done = done
	m.failures = 0
	m.mu.Unlock()

	go m.run(runCtx, done)
}

// Disconnect закрывает канал и останавливает переподключение
func (m *Manager) Disconnect() {
	m.stop()
}

// Run держит соединение до отмены ctx
func (m *Manager) Run(ctx context.Context) error {
	m.Connect(ctx)
	<-ctx.Done()
	if done := m.halt(); done != nil {
		<-done
	}
	return nil
}

// Send отправляет сообщение через активный уровень. Без буферизации:
// при отсутствии канала возвращает ErrNotConnected.
func (m *Manager) Send(ctx context.Context, msg []byte) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Send(ctx, msg); err != nil {
		// Закрытие канала переводит цикл в переподключение
		_ = conn.Close()
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

// State возвращает текущее состояние соединения
func (m *Manager) State() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats возвращает счетчики и среднюю задержку
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{
		State:          m.state,
		Tier:           m.tier,
		Errors:         m.errors,
		Attempts:       m.attempts,
		Failures:       m.failures,
		LatencySamples: m.latency.count(),
		AverageLatency: m.latency.average(),
	}
}

func (m *Manager) stop() {
	done := m.halt()
	if done == nil {
		return
	}

	// Вызов из обработчика события: цикл ждет возврата обработчика,
	// ожидание done здесь привело бы к взаимной блокировке
	if m.dispatching.Load() > 0 {
		return
	}
	<-done
}

func (m *Manager) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.BaseDelay
	b.Multiplier = m.opts.Multiplier
	b.MaxInterval = m.opts.MaxDelay
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

// halt отменяет текущий цикл и возвращает канал его завершения
func (m *Manager) halt() chan struct{} {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return done
}

// run цикл соединения: dial -> serve -> ошибка -> backoff или переход вниз
func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		if m.ownsLocked(done) {
			m.tier = TierNone
		}
		m.mu.Unlock()
		m.setState(done, models.StateDisconnected)
	}()

	tier := m.firstTier()
	if tier == TierNone {
		m.logger.Error("no transport configured")
		return
	}

	bo := m.newBackOff()
	failures := 0

	for ctx.Err() == nil {
		if failures == 0 && tier == m.firstTier() {
			m.setState(done, models.StateConnecting)
		} else {
			m.setState(done, models.StateReconnecting)
		}

		m.mu.Lock()
		m.attempts++
		if m.ownsLocked(done) {
			m.tier = tier
		}
		m.mu.Unlock()

		conn, err := m.dialers.get(tier).Dial(ctx)
		if err == nil {
			failures = 0
			bo.Reset()
			err = m.serve(ctx, done, tier, conn)
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		m.recordError(tier, failures, err)
		if ctx.Err() != nil {
			// обработчик ошибки вызвал Connect или Disconnect
			return
		}
		m.setState(done, models.StateReconnecting)

		if m.exhausted(tier, failures) {
			if next := m.nextTier(tier); next != tier {
				m.activateFallback(tier, next, failures)
				if ctx.Err() != nil {
					return
				}
				tier = next
				failures = 0
				bo.Reset()
				m.mu.Lock()
				m.failures = 0
				m.mu.Unlock()
				continue
			}
		}

		delay := bo.NextBackOff()
		m.logger.Debug("reconnecting",
			zap.Stringer("tier", tier),
			zap.Int("attempt", failures),
			zap.Duration("delay", delay),
		)
		if err := sleep(ctx, m.clock, delay); err != nil {
			return
		}
	}
}

// exhausted основной уровень сдается после MaxAttempts неудач подряд,
// server push - после первой
func (m *Manager) exhausted(tier Tier, failures int) bool {
	switch tier {
	case TierWebSocket:
		return failures >= m.opts.MaxAttempts
	case TierStream:
		return true
	default:
		return false
	}
}

func (m *Manager) firstTier() Tier {
	for t := TierWebSocket; t <= TierPolling; t++ {
		if m.dialers.get(t) != nil {
			return t
		}
	}
	return TierNone
}

func (m *Manager) nextTier(tier Tier) Tier {
	for t := tier + 1; t <= TierPolling; t++ {
		if m.dialers.get(t) != nil {
			return t
		}
	}
	return tier
}

// serve обслуживает установленный канал до первой ошибки
func (m *Manager) serve(ctx context.Context, done chan struct{}, tier Tier, conn Conn) error {
	m.mu.Lock()
	if m.ownsLocked(done) {
		m.conn = conn
		m.failures = 0
	}
	m.mu.Unlock()

	if tier == TierWebSocket {
		m.setState(done, models.StateConnected)
	} else {
		m.setState(done, models.StateUsingFallback)
	}
	m.logger.Info("transport connected", zap.Stringer("tier", tier))

	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	pongs := make(chan int64, 1)

	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	g.Go(func() error {
		return m.readLoop(gctx, conn, pongs)
	})
	if tier == TierWebSocket && m.opts.HeartbeatInterval > 0 {
		g.Go(func() error {
			return m.heartbeat(gctx, conn, pongs)
		})
	}

	return g.Wait()
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, pongs chan<- int64) error {
	for {
		msg, err := conn.Receive(ctx)
		if err != nil {
			return err
		}

		var frame api.HeartbeatFrame
		if json.Unmarshal(msg, &frame) == nil {
			switch frame.Type {
			case api.TypePong:
				select {
				case pongs <- frame.Timestamp:
				default:
				}
				continue
			case api.TypePing:
				pong, _ := json.Marshal(api.HeartbeatFrame{Type: api.TypePong, Timestamp: frame.Timestamp})
				if err := conn.Send(ctx, pong); err != nil {
					return fmt.Errorf("send pong: %w", err)
				}
				continue
			}
		}

		m.emit(EventMessage, msg)
	}
}

// heartbeat отправляет ping каждые HeartbeatInterval и ждет pong с тем же timestamp
func (m *Manager) heartbeat(ctx context.Context, conn Conn, pongs <-chan int64) error {
	for {
		if err := sleep(ctx, m.clock, m.opts.HeartbeatInterval); err != nil {
			return err
		}

		sentAt := m.clock.Now()
		ts := sentAt.UnixMilli()
		ping, err := json.Marshal(api.HeartbeatFrame{Type: api.TypePing, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("encode ping: %w", err)
		}
		if err := conn.Send(ctx, ping); err != nil {
			return fmt.Errorf("send ping: %w", err)
		}

		if err := m.awaitPong(ctx, ts, sentAt, pongs); err != nil {
			return err
		}
	}
}

func (m *Manager) awaitPong(ctx context.Context, ts int64, sentAt time.Time, pongs <-chan int64) error {
	expired := make(chan struct{})
	timer := m.clock.AfterFunc(m.opts.HeartbeatTimeout, func() { close(expired) })
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return ErrHeartbeatTimeout
		case got := <-pongs:
			if got != ts {
				continue
			}
			rtt := m.clock.Now().Sub(sentAt)
			m.latency.add(rtt)
			m.emit(EventLatency, rtt)
			return nil
		}
	}
}

func (m *Manager) recordError(tier Tier, failures int, err error) {
	if err == nil {
		err = ErrConnectionClosed
	}

	m.mu.Lock()
	m.errors++
	m.failures = failures
	m.mu.Unlock()

	m.logger.Warn("transport error",
		zap.Stringer("tier", tier),
		zap.Int("failures", failures),
		zap.Error(err),
	)
	m.emit(EventError, fmt.Errorf("%s: %w", tier, err))
}

func (m *Manager) activateFallback(from, to Tier, failures int) {
	m.logger.Warn("fallback activated",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("failures", failures),
	)
	m.emit(EventFallbackActivated, FallbackEvent{From: from, To: to, Failures: failures})
}

// setState меняет состояние от имени цикла done. Цикл, замененный новым
// Connect, состояние больше не трогает.
func (m *Manager) setState(done chan struct{}, state models.ConnectionState) {
	m.mu.Lock()
	if !m.ownsLocked(done) || m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	m.emit(EventStateChanged, state)
}

// ownsLocked: цикл done текущий, либо остановлен Disconnect и новый не запущен
func (m *Manager) ownsLocked(done chan struct{}) bool {
	return m.done == nil || m.done == done
}

func (m *Manager) emit(event string, payload any) {
	m.dispatching.Add(1)
	defer m.dispatching.Add(-1)
	m.emitter.Emit(event, payload)
}

// sleep ждет d по часам clk или отмены ctx
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	fired := make(chan struct{})
	timer := clk.AfterFunc(d, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fired:
		return nil
	}
}
