package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/pkg/api"
)

// RateLimiter ограничивает частоту запросов по ключу клиента (fixed window)
type RateLimiter struct {
	clock    clock.Clock
	buckets  map[string]*bucket
	logger   *zap.Logger
	cleanupC chan struct{}
	rate     int
	window   time.Duration
	mu       sync.RWMutex
	stopOnce sync.Once
}

// bucket представляет bucket для конкретного клиента
type bucket struct {
	lastRefill time.Time
	tokens     int
	mu         sync.Mutex
}

// NewRateLimiter создает новый rate limiter
// rate - максимальное количество запросов за window
func NewRateLimiter(rate int, window time.Duration, clk clock.Clock, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		clock:    clk,
		buckets:  make(map[string]*bucket),
		rate:     rate,
		window:   window,
		logger:   logger,
		cleanupC: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup периодически удаляет неактивные buckets
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.clock.After(rl.window * 2):
			rl.cleanupOldBuckets()
		case <-rl.cleanupC:
			return
		}
	}
}

// cleanupOldBuckets удаляет buckets, которые не пополнялись дольше двух окон
func (rl *RateLimiter) cleanupOldBuckets() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	removed := 0
	for key, b := range rl.buckets {
		b.mu.Lock()
		if now.Sub(b.lastRefill) >= rl.window*2 {
			delete(rl.buckets, key)
			removed++
		}
		b.mu.Unlock()
	}

	if removed > 0 {
		rl.logger.Debug("rate limit buckets cleaned up", zap.Int("removed", removed))
	}
}

// Stop останавливает cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.cleanupC)
	})
}

// Allow проверяет, разрешен ли запрос для данного ключа
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	b, exists := rl.buckets[key]
	if !exists {
		b = &bucket{
			tokens:     rl.rate,
			lastRefill: rl.clock.Now(),
		}
		rl.buckets[key] = b
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.clock.Now()
	if now.Sub(b.lastRefill) >= rl.window {
		b.tokens = rl.rate
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	return false
}

// RateLimitMiddleware создает middleware для ограничения частоты запросов.
// Возвращает limiter, чтобы вызывающий мог остановить его при shutdown.
func RateLimitMiddleware(rate int, window time.Duration, clk clock.Clock, logger *zap.Logger) (func(http.Handler) http.Handler, *RateLimiter) {
	limiter := NewRateLimiter(rate, window, clk, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(limiter, w, r, logger) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}, limiter
}

// PathRateLimit лимит для запросов с префиксом пути Prefix
type PathRateLimit struct {
	Prefix string
	Rate   int
	Window time.Duration
}

// RateLimitByPathMiddleware создает middleware с отдельными лимитами для префиксов путей.
// Выбирается первый подходящий префикс, остальные запросы идут в общий лимит.
func RateLimitByPathMiddleware(limits []PathRateLimit, defaultRate int, defaultWindow time.Duration, clk clock.Clock, logger *zap.Logger) (func(http.Handler) http.Handler, []*RateLimiter) {
	type pathLimiter struct {
		limiter *RateLimiter
		prefix  string
	}

	limiters := make([]pathLimiter, 0, len(limits))
	all := make([]*RateLimiter, 0, len(limits)+1)
	for _, limit := range limits {
		l := NewRateLimiter(limit.Rate, limit.Window, clk, logger)
		limiters = append(limiters, pathLimiter{prefix: limit.Prefix, limiter: l})
		all = append(all, l)
	}

	defaultLimiter := NewRateLimiter(defaultRate, defaultWindow, clk, logger)
	all = append(all, defaultLimiter)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := defaultLimiter
			for _, pl := range limiters {
				if strings.HasPrefix(r.URL.Path, pl.prefix) {
					limiter = pl.limiter
					break
				}
			}

			if !allow(limiter, w, r, logger) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}, all
}

// allow пишет 429, если лимит клиента исчерпан
func allow(limiter *RateLimiter, w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	key := clientKey(r)
	if limiter.Allow(key) {
		return true
	}

	logger.Warn("Rate limit exceeded",
		zap.String("client", key),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "rate limit exceeded, please try again later"})
	return false
}

// clientKey возвращает ключ лимита: clientId транспорта, если он передан,
// иначе IP адрес клиента
func clientKey(r *http.Request) string {
	if clientID := r.URL.Query().Get("clientId"); clientID != "" {
		return "client:" + clientID
	}
	return getClientIP(r)
}

// getClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Первый адрес списка - реальный клиент
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
