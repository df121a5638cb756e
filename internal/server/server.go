// Package server собирает relay-сервер: хранилище, рассылку, обработчики и middleware
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/hub"
	"github.com/iudanet/docsync/internal/server/middleware"
	"github.com/iudanet/docsync/internal/server/storage/sqlite"
)

// Server relay-сервер
type Server struct {
	storage  *sqlite.Storage
	hub      *hub.Hub
	handler  http.Handler
	limiters []*middleware.RateLimiter
	clock    clock.Clock
	logger   *zap.Logger
	cfg      config.Server
}

// New открывает хранилище и собирает обработчики
func New(ctx context.Context, cfg config.Server, clk clock.Clock, version string, logger *zap.Logger) (*Server, error) {
	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	h := hub.New(store, clk, logger.Named("hub"))

	property := handlers.NewPropertyHandler(store, h, clk, logger.Named("property"))
	realtime := handlers.NewRealtimeHandler(h, clk, cfg.KeepAlive, logger.Named("realtime"))
	health := handlers.NewHealthHandler(store, version, logger.Named("health"))

	rateLimit, limiters := middleware.RateLimitByPathMiddleware(
		[]middleware.PathRateLimit{
			{Prefix: "/api/v1/poll", Rate: cfg.PollRateLimit, Window: cfg.RateWindow},
		},
		cfg.RateLimit, cfg.RateWindow, clk, logger,
	)

	var handler http.Handler = NewRouter(property, realtime, health)
	handler = rateLimit(handler)
	handler = middleware.LoggingWithSkip(logger, []string{"/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return &Server{
		storage:  store,
		hub:      h,
		handler:  handler,
		limiters: limiters,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// NewRouter регистрирует маршруты relay-сервера
func NewRouter(property *handlers.PropertyHandler, realtime *handlers.RealtimeHandler, health *handlers.HealthHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Health)
	mux.HandleFunc("POST /api/v1/properties/{id}", property.HandleUpdate)
	mux.HandleFunc("GET /api/v1/properties/{id}", property.HandleGet)
	mux.HandleFunc("GET /ws", realtime.ServeWS)
	mux.HandleFunc("GET /api/v1/stream", realtime.ServeStream)
	mux.HandleFunc("POST /api/v1/messages", realtime.PostMessage)
	mux.HandleFunc("GET /api/v1/poll", realtime.Poll)

	return mux
}

// Handler возвращает корневой обработчик со всеми middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run слушает cfg.Addr до отмены ctx, затем корректно останавливает сервер
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve обслуживает listener до отмены ctx
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("relay server listening", zap.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down relay server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		s.pruneLoop(gctx)
		return nil
	})

	return g.Wait()
}

// pruneLoop периодически удаляет устаревшие сообщения журнала
func (s *Server) pruneLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.PruneInterval):
			pruned, err := s.hub.Prune(ctx, s.cfg.Retention)
			if err != nil {
				s.logger.Error("failed to prune message log", zap.Error(err))
				continue
			}
			if pruned > 0 {
				s.logger.Info("message log pruned", zap.Int64("messages", pruned))
			}
		}
	}
}

// Close останавливает rate limiters и закрывает хранилище
func (s *Server) Close() error {
	for _, l := range s.limiters {
		l.Stop()
	}
	return s.storage.Close()
}
