// Package clock абстрагирует время для таймеров debounce, backoff и heartbeat,
// чтобы тесты могли управлять временем детерминированно.
package clock

import "time"

// Clock источник времени и таймеров
type Clock interface {
	Now() time.Time
	// AfterFunc вызывает f в отдельной горутине через d
	AfterFunc(d time.Duration, f func()) Timer
	// After возвращает канал, в который придет время через d
	After(d time.Duration) <-chan time.Time
}

// Timer отменяемый таймер
type Timer interface {
	// Stop отменяет таймер. Возвращает false, если он уже сработал или остановлен
	Stop() bool
}

// Real системные часы
type Real struct{}

// New возвращает системные часы
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
