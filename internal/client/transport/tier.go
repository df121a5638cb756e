package transport

import "context"

// Tier уровень резервирования транспорта
type Tier int

const (
	TierNone      Tier = iota
	TierWebSocket      // основной дуплексный канал
	TierStream         // server-sent events + POST
	TierPolling        // опрос в обе стороны
)

func (t Tier) String() string {
	switch t {
	case TierWebSocket:
		return "websocket"
	case TierStream:
		return "stream"
	case TierPolling:
		return "polling"
	default:
		return "none"
	}
}

// Dialer устанавливает соединение одного уровня
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn установленный канал. Receive блокируется до следующего сообщения
// или ошибки; после Close все вызовы возвращают ошибку.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
