package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
)

// snapshotRecord формат записи в bucket snapshots
type snapshotRecord struct {
	UpdatedAt time.Time `json:"updatedAt"`
	ID        string    `json:"id"`
	Snapshot  []byte    `json:"snapshot"`
	Checksum  uint64    `json:"checksum"` // xxhash64 от незашифрованного снимка
	Sealed    bool      `json:"sealed,omitempty"`
}

// Put stores snapshot, replacing the previous one in a single transaction
func (s *Storage) Put(ctx context.Context, snapshot *models.Snapshot) error {
	if len(snapshot.Data) == 0 {
		return &storage.StorageError{Op: "put", ID: snapshot.ID, Err: fmt.Errorf("empty snapshot")}
	}

	db, err := s.handle()
	if err != nil {
		return &storage.StorageError{Op: "put", ID: snapshot.ID, Err: err}
	}

	record := snapshotRecord{
		UpdatedAt: snapshot.UpdatedAt.UTC(),
		ID:        string(snapshot.ID),
		Snapshot:  snapshot.Data,
		Checksum:  xxhash.Sum64(snapshot.Data),
	}

	if sealer := s.currentSealer(); sealer != nil {
		sealed, err := sealer.Seal(snapshot.Data, []byte(snapshot.ID))
		if err != nil {
			return &storage.StorageError{Op: "put", ID: snapshot.ID, Err: err}
		}
		record.Snapshot = sealed
		record.Sealed = true
	}

	data, err := json.Marshal(record)
	if err != nil {
		return &storage.StorageError{Op: "put", ID: snapshot.ID, Err: fmt.Errorf("failed to marshal snapshot: %w", err)}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return fmt.Errorf("snapshots bucket not found")
		}
		return bucket.Put([]byte(snapshot.ID), data)
	})
	if err != nil {
		return &storage.StorageError{Op: "put", ID: snapshot.ID, Err: fmt.Errorf("transaction failed: %w", err)}
	}

	return nil
}

// Get retrieves the latest snapshot of a document
func (s *Storage) Get(ctx context.Context, id models.DocumentID) (*models.Snapshot, error) {
	db, err := s.handle()
	if err != nil {
		return nil, &storage.StorageError{Op: "get", ID: id, Err: err}
	}

	var record *snapshotRecord

	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSnapshots)
		if bucket == nil {
			return storage.ErrSnapshotNotFound
		}

		data := bucket.Get([]byte(id))
		if data == nil {
			return storage.ErrSnapshotNotFound
		}

		// Десериализуем (data валидна только внутри транзакции)
		record = &snapshotRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			return nil, err
		}
		return nil, &storage.StorageError{Op: "get", ID: id, Err: err}
	}

	plain := record.Snapshot
	if record.Sealed {
		sealer := s.currentSealer()
		if sealer == nil {
			return nil, &storage.StorageError{Op: "get", ID: id, Err: storage.ErrSealed}
		}
		plain, err = sealer.Open(record.Snapshot, []byte(id))
		if err != nil {
			return nil, &storage.StorageError{Op: "get", ID: id, Err: err}
		}
	}

	if xxhash.Sum64(plain) != record.Checksum {
		return nil, &storage.StorageError{Op: "get", ID: id, Err: storage.ErrCorruptSnapshot}
	}

	return &models.Snapshot{
		UpdatedAt: record.UpdatedAt,
		ID:        models.DocumentID(record.ID),
		Data:      plain,
	}, nil
}
