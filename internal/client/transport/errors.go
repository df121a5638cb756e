package transport

import "errors"

var (
	// ErrNotConnected нет активного канала ни на одном уровне
	ErrNotConnected = errors.New("transport is not connected")

	// ErrHeartbeatTimeout pong не пришел за HeartbeatTimeout
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")

	// ErrConnectionClosed канал закрыт
	ErrConnectionClosed = errors.New("connection closed")
)
