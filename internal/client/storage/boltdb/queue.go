package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.etcd.io/bbolt"

	"github.com/iudanet/docsync/internal/client/storage"
	"github.com/iudanet/docsync/internal/models"
)

// Ключи очереди - ULID: лексикографический порядок совпадает с порядком
// постановки, поэтому курсор bbolt отдает записи FIFO и после перезапуска.

// Enqueue persists entry. A pending entry of the same document is superseded in place.
func (s *Storage) Enqueue(ctx context.Context, entry *models.QueueEntry) (*models.QueueEntry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, &storage.StorageError{Op: "enqueue", ID: entry.DocumentID, Err: err}
	}

	var stored models.QueueEntry

	err = db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		index := tx.Bucket(bucketQueueIndex)

		if key := index.Get([]byte(entry.DocumentID)); key != nil {
			if data := queue.Get(key); data != nil {
				if err := json.Unmarshal(data, &stored); err != nil {
					return fmt.Errorf("failed to unmarshal queue entry: %w", err)
				}

				// Заменяем payload, позиция в очереди сохраняется
				stored.Endpoint = entry.Endpoint
				stored.Payload = entry.Payload
				stored.EnqueuedAt = entry.EnqueuedAt
				stored.Attempts = 0
				stored.LastError = ""
				stored.Revision++

				return putEntry(queue, &stored)
			}
		}

		stored = *entry
		stored.ID = ulid.Make().String()
		stored.Revision = 1
		stored.Attempts = 0
		stored.LastError = ""

		if err := index.Put([]byte(stored.DocumentID), []byte(stored.ID)); err != nil {
			return fmt.Errorf("failed to update queue index: %w", err)
		}
		return putEntry(queue, &stored)
	})
	if err != nil {
		return nil, &storage.StorageError{Op: "enqueue", ID: entry.DocumentID, Err: err}
	}

	return &stored, nil
}

// List returns pending entries in enqueue order
func (s *Storage) List(ctx context.Context) ([]*models.QueueEntry, error) {
	db, err := s.handle()
	if err != nil {
		return nil, &storage.StorageError{Op: "list", Err: err}
	}

	var entries []*models.QueueEntry

	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketQueue).ForEach(func(k, v []byte) error {
			var entry models.QueueEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal queue entry %s: %w", k, err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, &storage.StorageError{Op: "list", Err: err}
	}

	return entries, nil
}

// Remove deletes a delivered entry unless it was superseded meanwhile
func (s *Storage) Remove(ctx context.Context, id string, revision int) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, &storage.StorageError{Op: "remove", Err: err}
	}

	removed := false

	err = db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		entry, err := getEntry(queue, id)
		if err != nil || entry == nil {
			return err
		}
		if entry.Revision != revision {
			return nil
		}

		if err := queue.Delete([]byte(id)); err != nil {
			return fmt.Errorf("failed to delete queue entry: %w", err)
		}

		index := tx.Bucket(bucketQueueIndex)
		if string(index.Get([]byte(entry.DocumentID))) == id {
			if err := index.Delete([]byte(entry.DocumentID)); err != nil {
				return fmt.Errorf("failed to update queue index: %w", err)
			}
		}

		removed = true
		return nil
	})
	if err != nil {
		return false, &storage.StorageError{Op: "remove", Err: err}
	}

	return removed, nil
}

// RecordFailure stores the last delivery error of an entry
func (s *Storage) RecordFailure(ctx context.Context, id string, revision int, reason string) error {
	db, err := s.handle()
	if err != nil {
		return &storage.StorageError{Op: "record failure", Err: err}
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket(bucketQueue)
		entry, err := getEntry(queue, id)
		if err != nil || entry == nil || entry.Revision != revision {
			return err
		}

		entry.Attempts++
		entry.LastError = reason
		return putEntry(queue, entry)
	})
	if err != nil {
		return &storage.StorageError{Op: "record failure", Err: err}
	}

	return nil
}

// Pending returns the number of queued entries
func (s *Storage) Pending(ctx context.Context) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, &storage.StorageError{Op: "pending", Err: err}
	}

	var count int
	err = db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, &storage.StorageError{Op: "pending", Err: err}
	}

	return count, nil
}

func getEntry(queue *bbolt.Bucket, id string) (*models.QueueEntry, error) {
	data := queue.Get([]byte(id))
	if data == nil {
		return nil, nil
	}

	var entry models.QueueEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue entry: %w", err)
	}
	return &entry, nil
}

func putEntry(queue *bbolt.Bucket, entry *models.QueueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal queue entry: %w", err)
	}
	if err := queue.Put([]byte(entry.ID), data); err != nil {
		return fmt.Errorf("failed to save queue entry: %w", err)
	}
	return nil
}
