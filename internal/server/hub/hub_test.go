package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
)

func newTestHub(t *testing.T) (*Hub, *clock.Fake) {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fc := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(store, fc, zap.NewNop()), fc
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return ""
	}
}

func assertEmpty(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

func TestHub_PublishFanOut(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t)

	a, cancelA := h.Subscribe("client-a")
	defer cancelA()
	b, cancelB := h.Subscribe("client-b")
	defer cancelB()
	assert.Equal(t, 2, h.Subscribers())

	_, err := h.Publish(ctx, "client-a", []byte(`{"type":"update"}`))
	require.NoError(t, err)

	assert.Equal(t, `{"type":"update"}`, receive(t, b))
	assertEmpty(t, a)

	// Без origin сообщение получают все
	_, err = h.Publish(ctx, "", []byte(`{"n":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, receive(t, a))
	assert.Equal(t, `{"n":1}`, receive(t, b))
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t)

	ch, cancel := h.Subscribe("client-a")
	cancel()
	cancel()
	assert.Zero(t, h.Subscribers())

	_, err := h.Publish(ctx, "", []byte(`{}`))
	require.NoError(t, err)
	assertEmpty(t, ch)
}

func TestHub_SlowSubscriberDropsMessages(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t)
	h.buffer = 1

	ch, cancel := h.Subscribe("slow")
	defer cancel()

	_, err := h.Publish(ctx, "", []byte(`1`))
	require.NoError(t, err)
	_, err = h.Publish(ctx, "", []byte(`2`))
	require.NoError(t, err)

	assert.Equal(t, "1", receive(t, ch))
	assertEmpty(t, ch)

	// Журнал хранит оба сообщения
	messages, cursor, err := h.Since(ctx, "slow", 1)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`2`)}, messages)
	assert.Equal(t, int64(2), cursor)
}

func TestHub_PublishRejectsInvalidJSON(t *testing.T) {
	h, _ := newTestHub(t)

	_, err := h.Publish(context.Background(), "", []byte("not json"))
	assert.Error(t, err)
}

func TestHub_Since(t *testing.T) {
	ctx := context.Background()
	h, _ := newTestHub(t)

	_, cursor, err := h.Since(ctx, "poller", -1)
	require.NoError(t, err)
	assert.Zero(t, cursor)

	for _, p := range []struct{ origin, payload string }{
		{"client-a", `"a1"`},
		{"poller", `"own"`},
		{"client-b", `"b1"`},
	} {
		_, err := h.Publish(ctx, p.origin, []byte(p.payload))
		require.NoError(t, err)
	}

	// Отрицательный курсор начинает с конца журнала
	messages, cursor, err := h.Since(ctx, "poller", -1)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Equal(t, int64(3), cursor)

	// Курсор, полученный на пустом журнале, видит все новые сообщения
	messages, cursor, err = h.Since(ctx, "poller", 0)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"a1"`), json.RawMessage(`"b1"`)}, messages)
	assert.Equal(t, int64(3), cursor)

	messages, cursor, err = h.Since(ctx, "poller", 1)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"b1"`)}, messages)
	assert.Equal(t, int64(3), cursor)

	messages, cursor, err = h.Since(ctx, "poller", 3)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.Equal(t, int64(3), cursor)
}

func TestHub_Prune(t *testing.T) {
	ctx := context.Background()
	h, fc := newTestHub(t)

	_, err := h.Publish(ctx, "", []byte(`"old"`))
	require.NoError(t, err)
	fc.Advance(2 * time.Hour)
	_, err = h.Publish(ctx, "", []byte(`"new"`))
	require.NoError(t, err)

	pruned, err := h.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	messages, _, err := h.Since(ctx, "", -1)
	require.NoError(t, err)
	assert.Empty(t, messages)

	messages, _, err = h.Since(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{json.RawMessage(`"new"`)}, messages)
}
