package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/internal/server/hub"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
)

func setupTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func setupTestHub(t *testing.T, store *sqlite.Storage, clk clock.Clock) *hub.Hub {
	t.Helper()
	return hub.New(store, clk, zap.NewNop())
}

// encodeDoc собирает обновление документа с полями fields от узла nodeID
func encodeDoc(t *testing.T, nodeID string, fields models.Fields) []byte {
	t.Helper()

	doc := crdt.NewDocument(nodeID)
	doc.Transact(func(tx *crdt.Txn) {
		for name, value := range fields {
			tx.Set(name, value)
		}
	})

	data, err := doc.Encode()
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}
