package storage

import (
	"errors"
	"fmt"

	"github.com/iudanet/docsync/internal/models"
)

// Common client storage errors
var (
	// ErrSnapshotNotFound indicates that no snapshot is stored for the document
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrCorruptSnapshot indicates that stored bytes failed checksum verification
	ErrCorruptSnapshot = errors.New("snapshot checksum mismatch")

	// ErrSealed indicates that a snapshot is encrypted and no passphrase was configured
	ErrSealed = errors.New("snapshot is sealed, passphrase required")
)

// StorageError local persistence failure. The previously committed
// snapshot is left untouched.
type StorageError struct {
	Err error
	Op  string
	ID  models.DocumentID
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
