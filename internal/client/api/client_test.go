package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// TestNewClient проверяет создание нового клиента
func TestNewClient(t *testing.T) {
	client := NewClient("agent-1", "http://localhost:8080/health")

	assert.NotNil(t, client)
	assert.Equal(t, "agent-1", client.userID)
	assert.NotNil(t, client.httpClient)
	assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
}

// TestClient_Deliver проверяет формат envelope и адрес доставки
func TestClient_Deliver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Проверяем метод и путь
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/properties/P-1", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.Equal(t, "P-1", raw["propertyId"])
		assert.Equal(t, "agent-1", raw["userId"])
		assert.Equal(t, "AQID", raw["update"], "update must be base64 encoded")

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient("agent-1", "")
	err := client.Deliver(context.Background(), &models.QueueEntry{
		DocumentID: "P-1",
		Endpoint:   server.URL + "/api/v1/properties/",
		Payload:    []byte{1, 2, 3},
	})
	require.NoError(t, err)
}

// TestClient_Deliver_Error проверяет обработку ответов вне 2xx
func TestClient_Deliver_Error(t *testing.T) {
	tests := []struct {
		responseBody string
		wantMessage  string
		name         string
		statusCode   int
	}{
		{
			name:         "json error",
			statusCode:   http.StatusBadRequest,
			responseBody: `{"error":"invalid update"}`,
			wantMessage:  "invalid update",
		},
		{
			name:         "plain text error",
			statusCode:   http.StatusBadGateway,
			responseBody: "upstream down",
			wantMessage:  "upstream down",
		},
		{
			name:         "redirect is not success",
			statusCode:   http.StatusNotModified,
			responseBody: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			client := NewClient("agent-1", "")
			err := client.Deliver(context.Background(), &models.QueueEntry{
				DocumentID: "P-1",
				Endpoint:   server.URL,
				Payload:    []byte("x"),
			})

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.statusCode, statusErr.StatusCode)
			assert.Equal(t, tt.wantMessage, statusErr.Message)
		})
	}
}

func TestClient_Deliver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	client := NewClient("agent-1", "")
	err := client.Deliver(context.Background(), &models.QueueEntry{DocumentID: "P-1", Endpoint: target})
	assert.Error(t, err)
}

func TestClient_Health(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := NewClient("agent-1", server.URL+"/health")
	assert.NoError(t, client.Health(context.Background()))

	healthy = false
	assert.Error(t, client.Health(context.Background()))
}

func TestClient_PostMessageAndPoll(t *testing.T) {
	var posted api.FallbackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/messages":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusAccepted)
		case "/api/v1/poll":
			assert.Equal(t, "client-1", r.URL.Query().Get("clientId"))
			assert.Equal(t, "41", r.URL.Query().Get("since"))
			_ = json.NewEncoder(w).Encode(api.PollResponse{
				Messages: []json.RawMessage{json.RawMessage(`{"type":"update"}`)},
				Cursor:   42,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient("agent-1", "")
	ctx := context.Background()

	err := client.PostMessage(ctx, server.URL+"/api/v1/messages", api.FallbackMessage{
		ClientID:  "client-1",
		Message:   json.RawMessage(`{"type":"update"}`),
		Timestamp: 1700000000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "client-1", posted.ClientID)
	assert.JSONEq(t, `{"type":"update"}`, string(posted.Message))

	resp, err := client.Poll(ctx, server.URL+"/api/v1/poll", "client-1", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(42), resp.Cursor)
	require.Len(t, resp.Messages, 1)
}

func TestClient_OpenStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("clientId") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: hello\n\n"))
	}))
	defer server.Close()

	client := NewClient("agent-1", "")

	body, err := client.OpenStream(context.Background(), server.URL, "client-1")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "data: hello\n\n", string(data))

	_, err = client.OpenStream(context.Background(), server.URL, "")
	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
}
