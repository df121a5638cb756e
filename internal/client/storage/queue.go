package storage

import (
	"context"

	"github.com/iudanet/docsync/internal/models"
)

//go:generate moq -out queuestorage_mock.go . QueueStorage

// QueueStorage durable FIFO of outbound updates
type QueueStorage interface {
	// Enqueue persists entry and returns the stored version.
	// If an entry for the same document is still pending, its payload is
	// replaced in place (position kept, Revision incremented)
	Enqueue(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error)

	// List returns pending entries in enqueue order
	List(ctx context.Context) ([]*models.QueueEntry, error)

	// Remove deletes the entry only if it still has the given revision.
	// Returns false when the entry is gone or was superseded
	Remove(ctx context.Context, id string, revision int) (bool, error)

	// RecordFailure stores the delivery error and bumps the attempt counter
	RecordFailure(ctx context.Context, id string, revision int, reason string) error

	// Pending returns the number of entries waiting for delivery
	Pending(ctx context.Context) (int, error)
}
