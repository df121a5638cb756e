package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
)

const (
	keyNodeID = "node_id"
	keySalt   = "snapshot_salt"
)

// NodeID returns the replica id of this device, generating it on first call
func (s *Storage) NodeID(ctx context.Context) (string, error) {
	db, err := s.handle()
	if err != nil {
		return "", &storage.StorageError{Op: "node id", Err: err}
	}

	var nodeID string

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)
		if bucket == nil {
			return fmt.Errorf("metadata bucket not found")
		}

		if stored := bucket.Get([]byte(keyNodeID)); stored != nil {
			nodeID = string(stored)
			return nil
		}

		// Первый запуск - генерируем идентификатор реплики
		nodeID = uuid.New().String()
		return bucket.Put([]byte(keyNodeID), []byte(nodeID))
	})
	if err != nil {
		return "", &storage.StorageError{Op: "node id", Err: err}
	}

	return nodeID, nil
}

// SaveLastDelivery saves the time of the last confirmed delivery of a document
func (s *Storage) SaveLastDelivery(ctx context.Context, id models.DocumentID, at time.Time) error {
	db, err := s.handle()
	if err != nil {
		return &storage.StorageError{Op: "save delivery", ID: id, Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDeliveries)
		if bucket == nil {
			return fmt.Errorf("deliveries bucket not found")
		}

		// Конвертируем время в bytes (unix nano, big endian)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(at.UnixNano()))

		return bucket.Put([]byte(id), buf)
	})
	if err != nil {
		return &storage.StorageError{Op: "save delivery", ID: id, Err: err}
	}

	return nil
}

// GetLastDelivery returns zero time if the document was never delivered
func (s *Storage) GetLastDelivery(ctx context.Context, id models.DocumentID) (time.Time, error) {
	db, err := s.handle()
	if err != nil {
		return time.Time{}, &storage.StorageError{Op: "get delivery", ID: id, Err: err}
	}

	var at time.Time

	err = db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDeliveries)
		if bucket == nil {
			return fmt.Errorf("deliveries bucket not found")
		}

		buf := bucket.Get([]byte(id))
		if buf == nil {
			return nil
		}
		at = time.Unix(0, int64(binary.BigEndian.Uint64(buf)))
		return nil
	})
	if err != nil {
		return time.Time{}, &storage.StorageError{Op: "get delivery", ID: id, Err: err}
	}

	return at, nil
}
