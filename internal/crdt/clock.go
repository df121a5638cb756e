package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// LamportClock логические часы Лампорта для упорядочивания записей полей
// между устройствами без синхронизации физического времени.
type LamportClock struct {
	nodeID  string
	counter int64
	mu      sync.Mutex
}

// NewLamportClock создает часы для узла nodeID.
// Пустой nodeID заменяется случайным UUID.
func NewLamportClock(nodeID string) *LamportClock {
	if nodeID == "" {
		nodeID = uuid.New().String()
	}
	return &LamportClock{nodeID: nodeID}
}

// Tick увеличивает счетчик для нового локального события
func (lc *LamportClock) Tick() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.counter++
	return lc.counter
}

// Observe учитывает timestamp, пришедший с другого узла:
// counter = max(local, remote). Следующий Tick гарантированно больше обоих.
func (lc *LamportClock) Observe(remote int64) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if remote > lc.counter {
		lc.counter = remote
	}
}

// Now возвращает текущее значение счетчика без изменения
func (lc *LamportClock) Now() int64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	return lc.counter
}

// NodeID возвращает идентификатор узла
func (lc *LamportClock) NodeID() string {
	return lc.nodeID
}
