// Package handlers содержит HTTP обработчики relay-сервера
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/pkg/api"
)

// maxBodySize ограничение тела запроса
const maxBodySize = 1 << 20

// Broker рассылает сообщения клиентам (реализуется hub.Hub)
type Broker interface {
	Subscribe(clientID string) (<-chan []byte, func())
	Publish(ctx context.Context, origin string, payload []byte) (int64, error)
	Since(ctx context.Context, clientID string, cursor int64) ([]json.RawMessage, int64, error)
}

// sendJSON отправляет JSON ответ
func sendJSON(w http.ResponseWriter, logger *zap.Logger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(w http.ResponseWriter, logger *zap.Logger, message string, statusCode int) {
	sendJSON(w, logger, api.ErrorResponse{Error: message}, statusCode)
}

// decodeBody читает JSON тело не больше maxBodySize
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	return decoder.Decode(v)
}
