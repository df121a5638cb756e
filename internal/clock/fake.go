package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake часы, которые двигаются только через Advance
type Fake struct {
	now     time.Time
	waiters []*fakeTimer
	cond    *sync.Cond
	mu      sync.Mutex
	seq     int
}

type fakeTimer struct {
	at    time.Time
	fn    func()
	ch    chan time.Time
	clock *Fake
	seq   int
}

// NewFake создает часы, показывающие start
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.add(d, fn, nil)
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.add(d, nil, ch)
	return ch
}

func (f *Fake) add(d time.Duration, fn func(), ch chan time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{at: f.now.Add(d), fn: fn, ch: ch, clock: f, seq: f.seq}
	f.waiters = append(f.waiters, t)
	f.cond.Broadcast()
	return t
}

// Advance сдвигает время на d и синхронно срабатывает все наступившие таймеры
// в порядке их срока. Колбэки AfterFunc выполняются в вызывающей горутине.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		sort.SliceStable(f.waiters, func(i, j int) bool {
			if f.waiters[i].at.Equal(f.waiters[j].at) {
				return f.waiters[i].seq < f.waiters[j].seq
			}
			return f.waiters[i].at.Before(f.waiters[j].at)
		})
		if len(f.waiters) == 0 || f.waiters[0].at.After(target) {
			f.now = target
			f.mu.Unlock()
			return
		}

		t := f.waiters[0]
		f.waiters = f.waiters[1:]
		if t.at.After(f.now) {
			f.now = t.at
		}
		now := f.now
		f.mu.Unlock()

		if t.fn != nil {
			t.fn()
		}
		if t.ch != nil {
			t.ch <- now
		}
	}
}

// Waiters возвращает число активных таймеров
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// BlockUntil ждет, пока не будет зарегистрировано как минимум n таймеров
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.cond.Wait()
	}
}

func (t *fakeTimer) Stop() bool {
	f := t.clock
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, w := range f.waiters {
		if w == t {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}
