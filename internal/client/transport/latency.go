package transport

import (
	"sync"
	"time"
)

// latencyWindow скользящее окно последних измерений задержки
type latencyWindow struct {
	samples []time.Duration
	size    int
	next    int
	mu      sync.Mutex
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]time.Duration, size), size: size}
}

func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = d
	w.next = (w.next + 1) % w.size
	if w.next == 0 {
		w.full = true
	}
}

func (w *latencyWindow) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.full {
		return w.size
	}
	return w.next
}

func (w *latencyWindow) average() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.next
	if w.full {
		n = w.size
	}
	if n == 0 {
		return 0
	}

	var sum time.Duration
	for _, s := range w.samples[:n] {
		sum += s
	}
	return sum / time.Duration(n)
}
