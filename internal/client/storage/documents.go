package storage

import (
	"context"

	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out documentstore_mock.go . DocumentStore

// DocumentStore keyed snapshot persistence, one record per document id.
// Readers observe either a complete prior snapshot or nothing.
type DocumentStore interface {
	// Get returns the latest snapshot.
	// Returns ErrSnapshotNotFound if the document was never stored
	Get(ctx context.Context, id models.DocumentID) (*models.Snapshot, error)

	// Put stores snapshot, replacing any previous one (idempotent upsert)
	Put(ctx context.Context, snapshot *models.Snapshot) error
}
