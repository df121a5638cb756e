package models

import (
	"time"
)

// SyncStatus состояние синхронизации одной открытой сессии
type SyncStatus string

const (
	StatusSynced   SyncStatus = "synced"
	StatusSyncing  SyncStatus = "syncing"
	StatusUnsynced SyncStatus = "unsynced"
	StatusConflict SyncStatus = "conflict"
	StatusFailed   SyncStatus = "failed"
)

// ConnectionState состояние менеджера транспорта
type ConnectionState string

const (
	StateDisconnected  ConnectionState = "disconnected"
	StateConnecting    ConnectionState = "connecting"
	StateConnected     ConnectionState = "connected"
	StateReconnecting  ConnectionState = "reconnecting"
	StateUsingFallback ConnectionState = "using_fallback"
	StateError         ConnectionState = "error"
)

// Snapshot неизменяемое закодированное состояние документа.
// Новый снимок заменяет старый целиком, на месте не изменяется.
type Snapshot struct {
	UpdatedAt time.Time  `json:"updatedAt"`
	ID        DocumentID `json:"id"`
	Data      []byte     `json:"snapshot"`
}

// QueueEntry элемент очереди исходящих обновлений.
// Удаляется только после подтвержденной доставки.
type QueueEntry struct {
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	ID         string     `json:"id"`
	DocumentID DocumentID `json:"documentId"`
	Endpoint   string     `json:"endpoint"`
	LastError  string     `json:"lastError,omitempty"`
	Payload    []byte     `json:"payload"`
	Attempts   int        `json:"attempts"`
	Revision   int        `json:"revision"` // Revision растет при замене payload более новым
}
