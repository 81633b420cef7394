// ABOUTME: HTTP transport: gin router for payload sync, health and Prometheus metrics.
// ABOUTME: Maps ingest results to 201/200 and failures to 400/413/500.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harperreed/health-ingest/internal/ingest"
	"github.com/harperreed/health-ingest/internal/logger"
	"github.com/harperreed/health-ingest/internal/models"
)

// DefaultMaxBodyBytes caps a sync request body.
const DefaultMaxBodyBytes = 50 << 20

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr         string
	MaxBodyBytes int64
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
}

type Server struct {
	engine   *gin.Engine
	log      *logger.Logger
	ingester ingest.Ingester
	pinger   Pinger
	cfg      Config
}

func New(ingester ingest.Ingester, pinger Pinger, log *logger.Logger, cfg Config) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{
		log:      log.With("component", "http"),
		ingester: ingester,
		pinger:   pinger,
		cfg:      cfg,
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(s.log))

	r.GET("/healthz", s.healthz)
	if s.cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/sync", s.sync)
	api := r.Group("/api/v1")
	{
		api.POST("/sync", s.sync)
	}
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) healthz(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) sync(c *gin.Context) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	payload, err := models.DecodePayload(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Errorf("payload exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}

	res, err := s.ingester.Ingest(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, models.ErrInvalidPayload) {
			respondError(c, http.StatusBadRequest, "invalid_payload", err)
			return
		}
		s.log.Error("ingest failed", "request_id", c.GetString(ctxRequestID), "error", err)
		respondError(c, http.StatusInternalServerError, "storage_fault",
			errors.New("payload was not stored; retry the request"))
		return
	}

	status := http.StatusCreated
	if res.Status == ingest.StatusDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}
