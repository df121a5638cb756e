package api

import "encoding/json"

// Типы сообщений канала реального времени
const (
	TypePing   = "ping"
	TypePong   = "pong"
	TypeUpdate = "update"
)

// UpdateEnvelope тело POST <apiEndpoint>/<propertyId>.
// Update кодируется в JSON как base64.
type UpdateEnvelope struct {
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
	Update     []byte `json:"update"`
}

// HeartbeatFrame ping/pong кадр основного канала
type HeartbeatFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // unix ms отправки ping
}

// PushMessage обновление, рассылаемое сервером подписчикам
type PushMessage struct {
	Type       string `json:"type"`
	PropertyID string `json:"propertyId"`
	UserID     string `json:"userId"`
	Update     []byte `json:"update"`
}

// FallbackMessage сообщение клиент -> сервер в резервных режимах
type FallbackMessage struct {
	ClientID  string          `json:"clientId"`
	Message   json.RawMessage `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// PollResponse ответ GET <pollURL>?clientId=&since=
type PollResponse struct {
	Messages []json.RawMessage `json:"messages"`
	Cursor   int64             `json:"cursor"`
}

// ErrorResponse тело ответа сервера с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
}

// UpdateAccepted ответ relay-сервера на принятое обновление
type UpdateAccepted struct {
	PropertyID string `json:"propertyId"`
	Revision   int64  `json:"revision"`
}

// HealthResponse ответ GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
