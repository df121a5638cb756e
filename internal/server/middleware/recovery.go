package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/pkg/api"
)

// RecoveryMiddleware создает middleware для восстановления после паники
// Перехватывает panic, логирует стек вызовов и возвращает 500 Internal Server Error.
// http.ErrAbortHandler пробрасывается дальше: net/http обрывает соединение молча.
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return recovery(logger, func(w http.ResponseWriter) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})
}

// RecoveryWithCustomError создает middleware, отвечающий JSON с кастомным сообщением
func RecoveryWithCustomError(logger *zap.Logger, errorMessage string) func(http.Handler) http.Handler {
	return recovery(logger, func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: errorMessage})
	})
}

func recovery(logger *zap.Logger, respond func(w http.ResponseWriter)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				if err == http.ErrAbortHandler {
					panic(err)
				}

				logger.Error("Panic recovered",
					zap.Any("error", err),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.ByteString("stack", debug.Stack()),
				)

				// Детали паники клиенту не раскрываются
				respond(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
