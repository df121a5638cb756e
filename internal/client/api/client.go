package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// StatusError ответ сервера вне диапазона 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	userID     string
	healthURL  string
}

// NewClient создает новый API клиент. userID подписывает отправляемые обновления
func NewClient(userID, healthURL string) *Client {
	return &Client{
		userID:    userID,
		healthURL: healthURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Deliver отправляет запись очереди: POST <endpoint>/<propertyId>.
// Любой 2xx ответ - успех.
func (c *Client) Deliver(ctx context.Context, entry *models.QueueEntry) error {
	target := strings.TrimRight(entry.Endpoint, "/") + "/" + url.PathEscape(string(entry.DocumentID))
	envelope := api.UpdateEnvelope{
		PropertyID: string(entry.DocumentID),
		UserID:     c.userID,
		Update:     entry.Payload,
	}

	if err := c.doRequest(ctx, http.MethodPost, target, envelope, nil); err != nil {
		return fmt.Errorf("deliver %s: %w", entry.DocumentID, err)
	}
	return nil
}

// Health проверяет доступность сервера
func (c *Client) Health(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodGet, c.healthURL, nil, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// PostMessage отправляет сообщение резервного канала
func (c *Client) PostMessage(ctx context.Context, target string, msg api.FallbackMessage) error {
	if err := c.doRequest(ctx, http.MethodPost, target, msg, nil); err != nil {
		return fmt.Errorf("post message failed: %w", err)
	}
	return nil
}

// Poll запрашивает сообщения после курсора since
func (c *Client) Poll(ctx context.Context, target, clientID string, since int64) (*api.PollResponse, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid poll url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	q.Set("since", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()

	var resp api.PollResponse
	if err := c.doRequest(ctx, http.MethodGet, u.String(), nil, &resp); err != nil {
		return nil, fmt.Errorf("poll request failed: %w", err)
	}
	return &resp, nil
}

// OpenStream открывает server-sent events поток. Поток живет, пока жив ctx
// или пока вызывающий не закроет тело ответа.
func (c *Client) OpenStream(ctx context.Context, target, clientID string) (io.ReadCloser, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Поток бессрочный: общий Timeout клиента к нему не применяем
	streamClient := *c.httpClient
	streamClient.Timeout = 0

	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, statusError(resp.StatusCode, body)
	}

	return resp.Body, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, target string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, respBody)
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func statusError(code int, body []byte) error {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &StatusError{StatusCode: code, Message: errResp.Error}
	}
	return &StatusError{StatusCode: code, Message: strings.TrimSpace(string(body))}
}
