package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/api/websocket"
	"github.com/lothammer/auction-backend/internal/infrastructure/config"
)

// RouterDeps carries everything the router mounts besides the core handler.
type RouterDeps struct {
	Handler *Handler
	Auth    *Authenticator
	Limiter Limiter // nil disables rate limiting

	// Live is the websocket upgrade endpoint; Metrics the Prometheus scrape
	// handler. Either may be nil.
	Live    http.HandlerFunc
	Metrics http.Handler

	// Ready reports whether downstream dependencies answer; wired to the
	// database pool ping.
	Ready func(ctx context.Context) error

	Logger *zap.Logger
}

// NewRouter assembles the full middleware chain and route table.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()
	deps.Handler.Register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := deps.Ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, envelope{
					Success: false,
					Error:   &errorBody{Code: "NOT_READY", Message: "dependencies unavailable", Retryable: true},
				})
				return
			}
		}
		writeData(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if deps.Live != nil {
		mux.HandleFunc("GET /api/v1/live", func(w http.ResponseWriter, r *http.Request) {
			if id, ok := identityFrom(r.Context()); ok {
				r = websocket.WithUserID(r, id.UserID)
			}
			deps.Live(w, r)
		})
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	middlewares := []func(http.Handler) http.Handler{
		Recovery(deps.Logger),
		Logging(deps.Logger),
		deps.Auth.Optional,
	}
	if deps.Limiter != nil {
		middlewares = append(middlewares, RateLimit(deps.Limiter))
	}
	return Chain(mux, middlewares...)
}

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func NewServer(cfg config.ServerConfig, router http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
