package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/storage"
	"github.com/iudanet/docsync/internal/validation"
	"github.com/iudanet/docsync/pkg/api"
)

// relayNodeID идентификатор узла, под которым сервер сливает состояния.
// Сервер сам не пишет полей, поэтому его записи в документе не появляются.
const relayNodeID = "relay"

// PropertyHandler принимает обновления документов и раздает слитое состояние
type PropertyHandler struct {
	storage storage.PropertyStorage
	broker  Broker
	clock   clock.Clock
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewPropertyHandler creates a new property handler
func NewPropertyHandler(store storage.PropertyStorage, broker Broker, clk clock.Clock, logger *zap.Logger) *PropertyHandler {
	return &PropertyHandler{
		storage: store,
		broker:  broker,
		clock:   clk,
		logger:  logger,
	}
}

// HandleUpdate обрабатывает POST /api/v1/properties/{id}.
// Обновление сливается с сохраненным состоянием по правилам LWW и
// рассылается подключенным клиентам как есть.
func (h *PropertyHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validation.ValidateDocumentID(id); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	var envelope api.UpdateEnvelope
	if err := decodeBody(w, r, &envelope); err != nil {
		h.logger.Warn("failed to decode update", zap.String("property_id", id), zap.Error(err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if envelope.PropertyID != "" && envelope.PropertyID != id {
		sendError(w, h.logger, "propertyId does not match path", http.StatusBadRequest)
		return
	}
	if len(envelope.Update) == 0 {
		sendError(w, h.logger, "update is required", http.StatusBadRequest)
		return
	}

	incoming, err := crdt.Decode(envelope.Update, relayNodeID)
	if err != nil {
		h.logger.Warn("malformed update",
			zap.String("property_id", id),
			zap.String("user_id", envelope.UserID),
			zap.Error(err))
		sendError(w, h.logger, "malformed update", http.StatusBadRequest)
		return
	}

	revision, err := h.merge(r.Context(), models.DocumentID(id), envelope.UserID, incoming)
	if err != nil {
		if errors.Is(err, storage.ErrRevisionConflict) {
			sendError(w, h.logger, "concurrent update, retry", http.StatusConflict)
			return
		}
		h.logger.Error("failed to store update", zap.String("property_id", id), zap.Error(err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.broadcast(r.Context(), id, envelope)

	h.logger.Info("update accepted",
		zap.String("property_id", id),
		zap.String("user_id", envelope.UserID),
		zap.Int64("revision", revision))

	sendJSON(w, h.logger, api.UpdateAccepted{PropertyID: id, Revision: revision}, http.StatusOK)
}

// HandleGet обрабатывает GET /api/v1/properties/{id}: слитое состояние документа
func (h *PropertyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validation.ValidateDocumentID(id); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.storage.GetProperty(r.Context(), models.DocumentID(id))
	if err != nil {
		if errors.Is(err, storage.ErrPropertyNotFound) {
			sendError(w, h.logger, "property not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get property", zap.String("property_id", id), zap.Error(err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, api.UpdateEnvelope{
		PropertyID: id,
		UserID:     state.UserID,
		Update:     state.State,
	}, http.StatusOK)
}

// merge сливает incoming с сохраненным состоянием и возвращает новую ревизию
func (h *PropertyHandler) merge(ctx context.Context, id models.DocumentID, userID string, incoming *crdt.Document) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	doc := incoming
	revision := int64(1)

	current, err := h.storage.GetProperty(ctx, id)
	switch {
	case err == nil:
		doc, err = crdt.Decode(current.State, relayNodeID)
		if err != nil {
			return 0, fmt.Errorf("stored state of %s: %w", id, err)
		}
		doc.Merge(incoming)
		revision = current.Revision + 1
	case !errors.Is(err, storage.ErrPropertyNotFound):
		return 0, err
	}

	state, err := doc.Encode()
	if err != nil {
		return 0, fmt.Errorf("encode state of %s: %w", id, err)
	}

	err = h.storage.SaveProperty(ctx, &models.PropertyState{
		UpdatedAt: h.clock.Now(),
		ID:        id,
		UserID:    userID,
		State:     state,
		Revision:  revision,
	})
	if err != nil {
		return 0, err
	}

	return revision, nil
}

// broadcast рассылает принятое обновление. Ошибка рассылки не отменяет доставку:
// состояние уже сохранено.
func (h *PropertyHandler) broadcast(ctx context.Context, id string, envelope api.UpdateEnvelope) {
	payload, err := json.Marshal(api.PushMessage{
		Type:       api.TypeUpdate,
		PropertyID: id,
		UserID:     envelope.UserID,
		Update:     envelope.Update,
	})
	if err != nil {
		h.logger.Error("failed to marshal push message", zap.Error(err))
		return
	}

	if _, err := h.broker.Publish(ctx, "", payload); err != nil {
		h.logger.Error("failed to broadcast update", zap.String("property_id", id), zap.Error(err))
	}
}
