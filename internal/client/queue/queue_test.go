package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/client/storage/boltdb"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/models"
)

const endpoint = "http://localhost:8080/api/v1/properties"

func newStore(t *testing.T) (*boltdb.Storage, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	store := boltdb.New(dbPath)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store, dbPath
}

func entry(doc, payload string) *models.QueueEntry {
	return &models.QueueEntry{DocumentID: models.DocumentID(doc), Endpoint: endpoint, Payload: []byte(payload)}
}

// recordingDeliverer запоминает порядок доставки и падает на документах из fail
func recordingDeliverer(fail map[models.DocumentID]bool) (*DelivererMock, *[]models.DocumentID) {
	var mu sync.Mutex
	var order []models.DocumentID
	return &DelivererMock{
		DeliverFunc: func(ctx context.Context, e *models.QueueEntry) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, e.DocumentID)
			if fail[e.DocumentID] {
				return errors.New("connection refused")
			}
			return nil
		},
	}, &order
}

func TestQueue_EnqueueValidation(t *testing.T) {
	store, _ := newStore(t)
	fc := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	q := New(store, store, &DelivererMock{}, fc, zap.NewNop())
	ctx := context.Background()

	_, err := q.Enqueue(ctx, &models.QueueEntry{Endpoint: endpoint})
	assert.Error(t, err)

	_, err = q.Enqueue(ctx, &models.QueueEntry{DocumentID: "P-1"})
	assert.Error(t, err)

	stored, err := q.Enqueue(ctx, entry("P-1", "x"))
	require.NoError(t, err)
	assert.Equal(t, fc.Now(), stored.EnqueuedAt)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestQueue_ProcessInOrder(t *testing.T) {
	store, _ := newStore(t)
	deliverer, order := recordingDeliverer(map[models.DocumentID]bool{"P-2": true})
	fc := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	q := New(store, store, deliverer, fc, zap.NewNop())
	ctx := context.Background()

	listener := &ListenerMock{
		DeliveredFunc: func(context.Context, *models.QueueEntry) {},
		FailedFunc:    func(context.Context, *models.QueueEntry, error) {},
	}
	q.AddListener(listener)

	for _, doc := range []string{"P-1", "P-2", "P-3"} {
		_, err := q.Enqueue(ctx, entry(doc, doc))
		require.NoError(t, err)
	}

	result, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 2, Failed: 1, Remaining: 1}, result)
	assert.Equal(t, []models.DocumentID{"P-1", "P-2", "P-3"}, *order)

	require.Len(t, listener.DeliveredCalls(), 2)
	require.Len(t, listener.FailedCalls(), 1)
	assert.Equal(t, models.DocumentID("P-2"), listener.FailedCalls()[0].Entry.DocumentID)
	assert.Equal(t, 1, listener.FailedCalls()[0].Entry.Attempts)

	// Неудачная запись осталась в очереди с ошибкой
	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "connection refused", entries[0].LastError)
	assert.Equal(t, 1, entries[0].Attempts)

	last, err := store.GetLastDelivery(ctx, "P-1")
	require.NoError(t, err)
	assert.True(t, fc.Now().Equal(last))
}

func TestQueue_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "restart.db")
	fc := clock.NewFake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	before := boltdb.New(dbPath)
	q := New(before, before, &DelivererMock{}, fc, zap.NewNop())
	for _, doc := range []string{"P-1", "P-2", "P-3"} {
		_, err := q.Enqueue(ctx, entry(doc, doc))
		require.NoError(t, err)
	}
	require.NoError(t, before.Close())

	// "Перезапуск": новое хранилище на том же файле
	after := boltdb.New(dbPath)
	defer func() {
		require.NoError(t, after.Close())
	}()
	deliverer, order := recordingDeliverer(nil)
	restarted := New(after, after, deliverer, fc, zap.NewNop())

	result, err := restarted.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Delivered)
	assert.Equal(t, []models.DocumentID{"P-1", "P-2", "P-3"}, *order)
	assert.Zero(t, result.Remaining)
}

func TestQueue_SupersededDuringDelivery(t *testing.T) {
	store, _ := newStore(t)
	fc := clock.NewFake(time.Now())
	ctx := context.Background()

	var q *Queue
	deliverer := &DelivererMock{
		DeliverFunc: func(ctx context.Context, e *models.QueueEntry) error {
			if string(e.Payload) == "old" {
				// Новая правка ставится в очередь, пока старая уходит по сети
				_, err := q.Enqueue(ctx, entry("P-1", "new"))
				require.NoError(t, err)
			}
			return nil
		},
	}
	q = New(store, store, deliverer, fc, zap.NewNop())

	_, err := q.Enqueue(ctx, entry("P-1", "old"))
	require.NoError(t, err)

	result, err := q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Superseded: 1, Remaining: 1}, result)

	entries, err := q.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("new"), entries[0].Payload)

	result, err = q.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Delivered: 1}, result)
}

func TestQueue_ProcessCollapsesConcurrentCalls(t *testing.T) {
	store, _ := newStore(t)
	fc := clock.NewFake(time.Now())
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	deliverer := &DelivererMock{
		DeliverFunc: func(context.Context, *models.QueueEntry) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return nil
		},
	}
	q := New(store, store, deliverer, fc, zap.NewNop())
	_, err := q.Enqueue(ctx, entry("P-1", "x"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = q.Process(ctx)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = q.Process(ctx)
	}()

	// Даем второму вызову присоединиться к идущему проходу
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Len(t, deliverer.DeliverCalls(), 1)
	assert.Equal(t, results[0], results[1])
}

func TestQueue_ProcessCanceled(t *testing.T) {
	store, _ := newStore(t)
	deliverer, order := recordingDeliverer(nil)
	q := New(store, store, deliverer, clock.NewFake(time.Now()), zap.NewNop())

	_, err := q.Enqueue(context.Background(), entry("P-1", "x"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = q.Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, *order)
}

func TestQueue_ProcessCanceledCountsSupersededAsRemaining(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var q *Queue
	deliverer := &DelivererMock{
		DeliverFunc: func(_ context.Context, e *models.QueueEntry) error {
			if string(e.Payload) == "old" {
				_, err := q.Enqueue(context.Background(), entry("P-1", "new"))
				require.NoError(t, err)
				cancel()
			}
			return nil
		},
	}
	q = New(store, store, deliverer, clock.NewFake(time.Now()), zap.NewNop())

	_, err := q.Enqueue(context.Background(), entry("P-1", "old"))
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), entry("P-2", "x"))
	require.NoError(t, err)

	result, err := q.Process(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Result{Superseded: 1, Remaining: 2}, result)

	pending, err := q.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, result.Remaining, pending)
}
