// Package events реализует in-process fan-out уведомлений по имени события.
// Подписчики вызываются синхронно в горутине Emit; паника одного
// подписчика не мешает остальным.
package events

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler обработчик события
type Handler func(payload any)

type subscription struct {
	handler Handler
	id      string
	seq     uint64
}

// Emitter список наблюдателей на каждое имя события
type Emitter struct {
	logger   *zap.Logger
	handlers map[string]map[string]*subscription
	mu       sync.RWMutex
	seq      uint64
}

// New создает Emitter
func New(logger *zap.Logger) *Emitter {
	return &Emitter{
		logger:   logger,
		handlers: make(map[string]map[string]*subscription),
	}
}

// Subscribe регистрирует обработчик события и возвращает функцию отписки
func (e *Emitter) Subscribe(event string, handler Handler) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers[event] == nil {
		e.handlers[event] = make(map[string]*subscription)
	}

	e.seq++
	id := uuid.NewString()
	e.handlers[event][id] = &subscription{id: id, handler: handler, seq: e.seq}

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.handlers[event], id)
	}
}

// Emit доставляет payload всем подписчикам event в порядке подписки
func (e *Emitter) Emit(event string, payload any) {
	e.mu.RLock()
	subs := make([]*subscription, 0, len(e.handlers[event]))
	for _, s := range e.handlers[event] {
		subs = append(subs, s)
	}
	e.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	for _, s := range subs {
		e.call(event, s)(payload)
	}
}

// Count возвращает число подписчиков события
func (e *Emitter) Count(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[event])
}

func (e *Emitter) call(event string, s *subscription) Handler {
	return func(payload any) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("event handler panicked",
					zap.String("event", event),
					zap.String("subscription", s.id),
					zap.Any("panic", r),
				)
			}
		}()
		s.handler(payload)
	}
}
