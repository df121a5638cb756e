package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/iudanet/docsync/internal/clock"
)

func newFakeClock() *clock.Fake {
	return clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("success"))
	})
}

func serve(handler http.Handler, method, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("Requests over limit are denied", func(t *testing.T) {
		limiter := NewRateLimiter(3, time.Minute, newFakeClock(), zap.NewNop())
		defer limiter.Stop()

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.Allow("192.168.1.2"), fmt.Sprintf("request %d should be allowed", i+1))
		}
		assert.False(t, limiter.Allow("192.168.1.2"), "request over limit should be denied")
	})

	t.Run("Different keys are tracked separately", func(t *testing.T) {
		limiter := NewRateLimiter(2, time.Minute, newFakeClock(), zap.NewNop())
		defer limiter.Stop()

		assert.True(t, limiter.Allow("a"))
		assert.True(t, limiter.Allow("a"))
		assert.False(t, limiter.Allow("a"), "a over limit")

		assert.True(t, limiter.Allow("b"))
		assert.True(t, limiter.Allow("b"))
		assert.False(t, limiter.Allow("b"), "b over limit")
	})

	t.Run("Tokens refill after window expires", func(t *testing.T) {
		fc := newFakeClock()
		limiter := NewRateLimiter(2, time.Minute, fc, zap.NewNop())
		defer limiter.Stop()

		assert.True(t, limiter.Allow("key"))
		assert.True(t, limiter.Allow("key"))
		assert.False(t, limiter.Allow("key"), "should be rate limited")

		fc.Advance(59 * time.Second)
		assert.False(t, limiter.Allow("key"), "window has not expired yet")

		fc.Advance(time.Second)
		assert.True(t, limiter.Allow("key"), "tokens should be refilled")
		assert.True(t, limiter.Allow("key"), "tokens should be refilled")
		assert.False(t, limiter.Allow("key"))
	})
}

func TestRateLimiter_CleanupOldBuckets(t *testing.T) {
	fc := newFakeClock()
	limiter := NewRateLimiter(10, time.Minute, fc, zap.NewNop())
	defer limiter.Stop()

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")

	limiter.mu.RLock()
	assert.Len(t, limiter.buckets, 2)
	limiter.mu.RUnlock()

	// Ждем пока cleanup goroutine встанет на таймер
	fc.BlockUntil(1)
	fc.Advance(2 * time.Minute)

	require.Eventually(t, func() bool {
		limiter.mu.RLock()
		defer limiter.mu.RUnlock()
		return len(limiter.buckets) == 0
	}, time.Second, 5*time.Millisecond, "old buckets should be cleaned up")

	limiter.Stop()
	limiter.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("Requests over limit are blocked with 429", func(t *testing.T) {
		middleware, limiter := RateLimitMiddleware(3, time.Minute, newFakeClock(), zap.NewNop())
		defer limiter.Stop()
		handler := middleware(okHandler())

		for i := 0; i < 3; i++ {
			w := serve(handler, http.MethodPost, "/api/v1/properties/p", "192.168.1.2:12345")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "success", w.Body.String())
		}

		w := serve(handler, http.MethodPost, "/api/v1/properties/p", "192.168.1.2:12345")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "60", w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "rate limit exceeded")
	})

	t.Run("Client id takes precedence over address", func(t *testing.T) {
		middleware, limiter := RateLimitMiddleware(1, time.Minute, newFakeClock(), zap.NewNop())
		defer limiter.Stop()
		handler := middleware(okHandler())

		// Два клиента за одним NAT
		assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/api/v1/poll?clientId=a", "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/api/v1/poll?clientId=b", "10.0.0.1:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, http.MethodGet, "/api/v1/poll?clientId=a", "10.0.0.1:1").Code)
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		expectedIP string
	}{
		{
			name:       "X-Forwarded-For with single IP",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Forwarded-For with multiple IPs",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1, 10.0.0.2, 10.0.0.3",
			expectedIP: "192.168.1.1",
		},
		{
			name:       "X-Real-IP when X-Forwarded-For is empty",
			remoteAddr: "10.0.0.1:12345",
			xRealIP:    "192.168.2.1",
			expectedIP: "192.168.2.1",
		},
		{
			name:       "RemoteAddr when headers are empty",
			remoteAddr: "192.168.3.1:54321",
			expectedIP: "192.168.3.1:54321",
		},
		{
			name:       "X-Forwarded-For takes precedence over X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			xff:        "192.168.1.1",
			xRealIP:    "192.168.2.1",
			expectedIP: "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.expectedIP, getClientIP(req))
		})
	}
}

func TestRateLimitByPathMiddleware(t *testing.T) {
	limits := []PathRateLimit{
		{Prefix: "/api/v1/poll", Rate: 3, Window: time.Minute},
		{Prefix: "/api/v1/properties/", Rate: 1, Window: time.Minute},
	}

	middleware, limiters := RateLimitByPathMiddleware(limits, 2, time.Minute, newFakeClock(), zap.NewNop())
	defer func() {
		for _, l := range limiters {
			l.Stop()
		}
	}()
	require.Len(t, limiters, 3)
	handler := middleware(okHandler())

	t.Run("Poll has its own limit", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/api/v1/poll", "192.168.1.1:1").Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, http.MethodGet, "/api/v1/poll", "192.168.1.1:1").Code)
	})

	t.Run("Prefix matches any property", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(handler, http.MethodPost, "/api/v1/properties/a", "192.168.1.2:1").Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, http.MethodPost, "/api/v1/properties/b", "192.168.1.2:1").Code)
	})

	t.Run("Unknown path uses default limit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			assert.Equal(t, http.StatusOK, serve(handler, http.MethodGet, "/health", "192.168.1.3:1").Code)
		}
		assert.Equal(t, http.StatusTooManyRequests, serve(handler, http.MethodGet, "/health", "192.168.1.3:1").Code)
	})
}

func TestRateLimitMiddleware_LogsExceededRequests(t *testing.T) {
	logger, logs := newObservedLogger(zapcore.WarnLevel)

	middleware, limiter := RateLimitMiddleware(1, time.Minute, newFakeClock(), logger)
	defer limiter.Stop()
	handler := middleware(okHandler())

	serve(handler, http.MethodPost, "/api/v1/messages", "192.168.1.1:12345")
	w := serve(handler, http.MethodPost, "/api/v1/messages", "192.168.1.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	entries := logs.FilterMessage("Rate limit exceeded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "192.168.1.1:12345", fields["client"])
	assert.Equal(t, "/api/v1/messages", fields["path"])
	assert.Equal(t, http.MethodPost, fields["method"])
}
