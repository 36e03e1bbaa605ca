package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/pgbridge/pkg/config"
	"github.com/edgeflare/pgbridge/pkg/httputil"
	mw "github.com/edgeflare/pgbridge/pkg/httputil/middleware"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

type Server struct {
	router  *httputil.Router
	bridge  *Bridge
	backend Backend
	logger  *zap.Logger
}

// NewServer mounts the bridge under cfg.PathPrefix and a health endpoint at
// /healthz.
func NewServer(cfg *config.Config, backend Backend, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := httputil.NewRouter(httputil.WithServerOptions(func(s *http.Server) {
		s.ReadHeaderTimeout = 10 * time.Second
	}))

	s := &Server{
		router:  router,
		bridge:  NewBridge(cfg, backend, logger),
		backend: backend,
		logger:  logger,
	}

	router.Use(
		mw.RequestID,
		mw.CORSWithOrigins(cfg.CORSOrigins),
		mw.LoggerWithOptions(&mw.LoggerOptions{Logger: logger}),
		mw.Metrics,
	)

	router.Handle("GET /healthz", http.HandlerFunc(s.handleHealth))
	router.Mount(cfg.PathPrefix, s.bridge)

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router.Handler()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p, ok := s.backend.(Pinger)
	if !ok {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		httputil.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("server starting", zap.String("addr", addr))
	return s.router.ListenAndServe(addr)
}

// Shutdown gracefully stops the server. In-flight backend calls finish first.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}
