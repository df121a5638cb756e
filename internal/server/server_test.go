package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apiclient "github.com/iudanet/docsync/internal/client/api"
	"github.com/iudanet/docsync/internal/client/transport"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/crdt"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

type testRelay struct {
	server *Server
	http   *httptest.Server
	client *apiclient.Client
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	cfg := config.DefaultServer()
	cfg.DBPath = filepath.Join(t.TempDir(), "relay.db")

	srv, err := New(context.Background(), cfg, clock.New(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testRelay{
		server: srv,
		http:   ts,
		client: apiclient.NewClient("agent-1", ts.URL+"/health"),
	}
}

func (r *testRelay) deliver(t *testing.T, id string, fields models.Fields) []byte {
	t.Helper()

	doc := crdt.NewDocument("node-a")
	doc.Transact(func(tx *crdt.Txn) {
		for name, value := range fields {
			tx.Set(name, value)
		}
	})
	payload, err := doc.Encode()
	require.NoError(t, err)

	err = r.client.Deliver(context.Background(), &models.QueueEntry{
		DocumentID: models.DocumentID(id),
		Endpoint:   r.http.URL + "/api/v1/properties",
		Payload:    payload,
	})
	require.NoError(t, err)

	return payload
}

func (r *testRelay) waitSubscribers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.server.hub.Subscribers() == n }, 2*time.Second, 5*time.Millisecond)
}

func receivePush(t *testing.T, conn transport.Conn) api.PushMessage {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := conn.Receive(ctx)
	require.NoError(t, err)

	var push api.PushMessage
	require.NoError(t, json.Unmarshal(data, &push))
	return push
}

func TestServer_Health(t *testing.T) {
	relay := newTestRelay(t)

	assert.NoError(t, relay.client.Health(context.Background()))
}

func TestServer_Routes(t *testing.T) {
	relay := newTestRelay(t)

	tests := []struct {
		method   string
		path     string
		wantCode int
	}{
		{method: http.MethodGet, path: "/unknown", wantCode: http.StatusNotFound},
		{method: http.MethodDelete, path: "/api/v1/properties/prop-1", wantCode: http.StatusMethodNotAllowed},
		{method: http.MethodGet, path: "/api/v1/properties/prop-1", wantCode: http.StatusNotFound},
		{method: http.MethodGet, path: "/api/v1/poll?clientId=x", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, relay.http.URL+tt.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantCode, resp.StatusCode)
		})
	}
}

func TestServer_DeliveryPushedOverWebSocket(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t)

	dialer := &transport.WebSocketDialer{
		URL:      "ws" + strings.TrimPrefix(relay.http.URL, "http") + "/ws",
		ClientID: "client-b",
	}
	conn, err := dialer.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	relay.waitSubscribers(t, 1)

	// Heartbeat основного канала
	require.NoError(t, conn.Send(ctx, []byte(`{"type":"ping","timestamp":42}`)))
	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pong, err := conn.Receive(recvCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong","timestamp":42}`, string(pong))

	payload := relay.deliver(t, "prop-1", models.Fields{"name": models.String("Villa")})

	push := receivePush(t, conn)
	assert.Equal(t, api.TypeUpdate, push.Type)
	assert.Equal(t, "prop-1", push.PropertyID)
	assert.Equal(t, "agent-1", push.UserID)
	assert.Equal(t, payload, push.Update)
}

func TestServer_DeliveryPushedOverStream(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t)

	dialer := &transport.StreamDialer{
		Client:     relay.client,
		Clock:      clock.New(),
		StreamURL:  relay.http.URL + "/api/v1/stream",
		MessageURL: relay.http.URL + "/api/v1/messages",
		ClientID:   "client-b",
	}
	conn, err := dialer.Dial(ctx)
	require.NoError(t, err)
	defer conn.Close()
	relay.waitSubscribers(t, 1)

	relay.deliver(t, "prop-2", models.Fields{"price": models.Number(100)})

	push := receivePush(t, conn)
	assert.Equal(t, "prop-2", push.PropertyID)
}

func TestServer_FallbackTiersExchangeMessages(t *testing.T) {
	ctx := context.Background()
	relay := newTestRelay(t)

	poller := &transport.PollDialer{
		Client:     relay.client,
		Clock:      clock.New(),
		PollURL:    relay.http.URL + "/api/v1/poll",
		MessageURL: relay.http.URL + "/api/v1/messages",
		ClientID:   "client-poll",
		Interval:   10 * time.Millisecond,
	}
	pollConn, err := poller.Dial(ctx)
	require.NoError(t, err)
	defer pollConn.Close()

	streamer := &transport.StreamDialer{
		Client:     relay.client,
		Clock:      clock.New(),
		StreamURL:  relay.http.URL + "/api/v1/stream",
		MessageURL: relay.http.URL + "/api/v1/messages",
		ClientID:   "client-stream",
	}
	streamConn, err := streamer.Dial(ctx)
	require.NoError(t, err)
	defer streamConn.Close()
	relay.waitSubscribers(t, 1)

	// Опрос -> POST /messages -> SSE
	require.NoError(t, pollConn.Send(ctx, []byte(`{"type":"note","from":"poll"}`)))
	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := streamConn.Receive(recvCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"note","from":"poll"}`, string(msg))

	// SSE клиент отправляет через POST, опрос забирает из журнала
	require.NoError(t, streamConn.Send(ctx, []byte(`{"type":"note","from":"stream"}`)))
	msg, err = pollConn.Receive(recvCtx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"note","from":"stream"}`, string(msg))
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.DBPath = filepath.Join(t.TempDir(), "relay.db")

	srv, err := New(context.Background(), cfg, clock.New(), "test", zap.NewNop())
	require.NoError(t, err)
	defer srv.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()

	client := apiclient.NewClient("agent-1", "http://"+listener.Addr().String()+"/health")
	require.Eventually(t, func() bool {
		return client.Health(context.Background()) == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
