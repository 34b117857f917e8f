package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/application/service"
)

// Server is the HTTP surface over the handoff service. The producer
// deposits and retrieves; the reviewer-facing layer inspects and
// resolves. No other caller exists.
type Server struct {
	service *service.HandoffService
	metrics *Metrics
	logger  *zap.Logger
	httpSrv *http.Server
}

// NewServer wires the router, middleware, and instruments.
func NewServer(addr string, svc *service.HandoffService, logger *zap.Logger) *Server {
	s := &Server{
		service: svc,
		metrics: NewMetrics(),
		logger:  logger.Named("api"),
	}

	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(s.logger))
	router.Use(recoveryMiddleware(s.logger))

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/executions", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/executions/{id}", s.handleInspect).Methods(http.MethodGet)
	v1.HandleFunc("/executions/{id}/approval", s.handleResolve).Methods(http.MethodPost)
	v1.HandleFunc("/executions/{id}/result", s.handleRetrieve).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: router,
		// Blocking retrieves park a handler for up to the wait ceiling,
		// so the write timeout must stay above it
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 6 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Handler exposes the routed handler. Test helper.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// ListenAndServe runs until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpSrv.Shutdown(ctx)
}
