package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/pkg/api"
)

// FallbackClient HTTP операции резервных уровней
type FallbackClient interface {
	PostMessage(ctx context.Context, target string, msg api.FallbackMessage) error
	Poll(ctx context.Context, target, clientID string, since int64) (*api.PollResponse, error)
	OpenStream(ctx context.Context, target, clientID string) (io.ReadCloser, error)
}

// poster отправка client -> server через POST {message, clientId, timestamp}
type poster struct {
	client   FallbackClient
	clock    clock.Clock
	url      string
	clientID string
}

func (p *poster) post(ctx context.Context, msg []byte) error {
	if !json.Valid(msg) {
		// Не-JSON сообщения передаются строкой
		quoted, err := json.Marshal(string(msg))
		if err != nil {
			return err
		}
		msg = quoted
	}

	return p.client.PostMessage(ctx, p.url, api.FallbackMessage{
		ClientID:  p.clientID,
		Message:   json.RawMessage(msg),
		Timestamp: p.clock.Now().UnixMilli(),
	})
}

// StreamDialer второй уровень: server-sent events + POST
type StreamDialer struct {
	Client     FallbackClient
	Clock      clock.Clock
	StreamURL  string
	MessageURL string
	ClientID   string
}

// Dial открывает поток событий
func (d *StreamDialer) Dial(ctx context.Context) (Conn, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	body, err := d.Client.OpenStream(streamCtx, d.StreamURL, d.ClientID)
	if err != nil {
		cancel()
		return nil, err
	}

	return &streamConn{
		poster: poster{client: d.Client, clock: d.Clock, url: d.MessageURL, clientID: d.ClientID},
		body:   body,
		reader: bufio.NewReader(body),
		cancel: cancel,
	}, nil
}

type streamConn struct {
	poster
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	once   sync.Once
}

func (c *streamConn) Send(ctx context.Context, msg []byte) error {
	return c.post(ctx, msg)
}

// Receive читает следующее событие: строки "data:" до пустой строки.
// Комментарии (":") и прочие поля пропускаются.
func (c *streamConn) Receive(ctx context.Context) ([]byte, error) {
	var data [][]byte

	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil, ErrConnectionClosed
			}
			return nil, fmt.Errorf("stream read failed: %w", err)
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(data) == 0 {
				continue
			}
			return bytes.Join(data, []byte("\n")), nil
		}

		if value, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			data = append(data, bytes.TrimPrefix(value, []byte(" ")))
		}
	}
}

func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.body.Close()
	})
	return err
}

// PollDialer третий уровень: опрос в обе стороны
type PollDialer struct {
	Client     FallbackClient
	Clock      clock.Clock
	PollURL    string
	MessageURL string
	ClientID   string
	Interval   time.Duration
}

// PollFromHead курсор первого опроса: сервер возвращает текущую голову журнала
const PollFromHead int64 = -1

// Dial выполняет первый опрос, чтобы убедиться в доступности сервера
func (d *PollDialer) Dial(ctx context.Context) (Conn, error) {
	resp, err := d.Client.Poll(ctx, d.PollURL, d.ClientID, PollFromHead)
	if err != nil {
		return nil, err
	}

	// Сообщения, накопленные до подключения, не воспроизводим
	return &pollConn{
		poster:   poster{client: d.Client, clock: d.Clock, url: d.MessageURL, clientID: d.ClientID},
		pollURL:  d.PollURL,
		interval: d.Interval,
		cursor:   resp.Cursor,
		closed:   make(chan struct{}),
	}, nil
}

type pollConn struct {
	poster
	closed   chan struct{}
	pollURL  string
	pending  [][]byte
	interval time.Duration
	cursor   int64
	once     sync.Once
}

func (c *pollConn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	return c.post(ctx, msg)
}

// Receive отдает накопленные сообщения, затем опрашивает сервер раз в interval
func (c *pollConn) Receive(ctx context.Context) ([]byte, error) {
	for len(c.pending) == 0 {
		pollCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-c.closed:
				cancel()
			case <-pollCtx.Done():
			}
		}()

		err := sleep(pollCtx, c.clock, c.interval)
		if err == nil {
			var resp *api.PollResponse
			resp, err = c.client.Poll(pollCtx, c.pollURL, c.clientID, c.cursor)
			if err == nil {
				c.cursor = resp.Cursor
				for _, m := range resp.Messages {
					c.pending = append(c.pending, []byte(m))
				}
			}
		}
		cancel()

		select {
		case <-c.closed:
			return nil, ErrConnectionClosed
		default:
		}
		if err != nil {
			return nil, err
		}
	}

	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg, nil
}

func (c *pollConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
