package boltdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func newEntry(doc string, payload string) *models.QueueEntry {
	return &models.QueueEntry{
		DocumentID: models.DocumentID(doc),
		Endpoint:   "http://localhost/api/v1/properties",
		Payload:    []byte(payload),
		EnqueuedAt: time.Now(),
	}
}

func TestQueue_EnqueueListOrder(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	for _, doc := range []string{"P-3", "P-1", "P-2"} {
		entry, err := store.Enqueue(ctx, newEntry(doc, doc))
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Equal(t, 1, entry.Revision)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.DocumentID("P-3"), entries[0].DocumentID)
	assert.Equal(t, models.DocumentID("P-1"), entries[1].DocumentID)
	assert.Equal(t, models.DocumentID("P-2"), entries[2].DocumentID)

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestQueue_SupersedeInPlace(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, newEntry("P-1", "old"))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, newEntry("P-2", "other"))
	require.NoError(t, err)

	second, err := store.Enqueue(ctx, newEntry("P-1", "new"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "Position must be kept")
	assert.Equal(t, 2, second.Revision)

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.DocumentID("P-1"), entries[0].DocumentID)
	assert.Equal(t, []byte("new"), entries[0].Payload)
}

func TestQueue_RemoveRespectsRevision(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	first, err := store.Enqueue(ctx, newEntry("P-1", "old"))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, newEntry("P-1", "new"))
	require.NoError(t, err)

	// Доставка старой ревизии не удаляет новую
	removed, err := store.Remove(ctx, first.ID, first.Revision)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = store.Remove(ctx, first.ID, 2)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove(ctx, first.ID, 2)
	require.NoError(t, err)
	assert.False(t, removed, "Removing twice is a no-op")

	// После удаления новая постановка создает новую запись
	again, err := store.Enqueue(ctx, newEntry("P-1", "newer"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID)
	assert.Equal(t, 1, again.Revision)
}

func TestQueue_RecordFailure(t *testing.T) {
	store, _ := createTestStorage(t)
	ctx := context.Background()

	entry, err := store.Enqueue(ctx, newEntry("P-1", "x"))
	require.NoError(t, err)

	require.NoError(t, store.RecordFailure(ctx, entry.ID, entry.Revision, "connection refused"))
	require.NoError(t, store.RecordFailure(ctx, entry.ID, entry.Revision, "timeout"))
	require.NoError(t, store.RecordFailure(ctx, "unknown", 1, "ignored"))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, "timeout", entries[0].LastError)
}

func TestQueue_SurvivesRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	store := New(dbPath)
	for _, doc := range []string{"P-1", "P-2", "P-3"} {
		_, err := store.Enqueue(ctx, newEntry(doc, doc))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	restarted := New(dbPath)
	defer func() {
		require.NoError(t, restarted.Close())
	}()

	entries, err := restarted.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, doc := range []string{"P-1", "P-2", "P-3"} {
		assert.Equal(t, models.DocumentID(doc), entries[i].DocumentID)
	}

	// Новые записи после перезапуска встают в конец
	_, err = restarted.Enqueue(ctx, newEntry("P-4", "P-4"))
	require.NoError(t, err)
	entries, err = restarted.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentID("P-4"), entries[3].DocumentID)
}
