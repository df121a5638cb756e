package storage

import (
	"context"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

// PropertyStorage хранит слитое состояние документов
type PropertyStorage interface {
	// GetProperty returns the merged state of a property
	// Returns ErrPropertyNotFound if nothing was stored yet
	GetProperty(ctx context.Context, id models.DocumentID) (*models.PropertyState, error)

	// SaveProperty stores state if the stored revision still equals state.Revision-1.
	// Returns ErrRevisionConflict otherwise.
	SaveProperty(ctx context.Context, state *models.PropertyState) error
}

// MessageStorage журнал рассылки для клиентов резервного режима
type MessageStorage interface {
	// AppendMessage stores msg and returns its sequence number
	AppendMessage(ctx context.Context, msg *models.RelayMessage) (int64, error)

	// MessagesSince returns up to limit messages with Seq > since in Seq order,
	// skipping those sent by exclude
	MessagesSince(ctx context.Context, since int64, exclude string, limit int) ([]*models.RelayMessage, error)

	// LatestSeq returns the sequence number of the newest message, 0 for an empty log
	LatestSeq(ctx context.Context) (int64, error)

	// PruneMessages deletes messages created before the given time
	PruneMessages(ctx context.Context, before time.Time) (int64, error)
}
