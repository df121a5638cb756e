package storage

import (
	"context"
	"time"

	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client metadata
type MetadataStorage interface {
	// NodeID returns the persistent replica id of this device,
	// generating it on first use
	NodeID(ctx context.Context) (string, error)

	// SaveLastDelivery records the time of the last confirmed delivery for a document
	SaveLastDelivery(ctx context.Context, id models.DocumentID, at time.Time) error

	// GetLastDelivery returns zero time if the document was never delivered
	GetLastDelivery(ctx context.Context, id models.DocumentID) (time.Time, error)
}
