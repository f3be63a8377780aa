// Package server exposes the map over HTTP: navigation commands, the state
// of the tile cache and the decoded tiles themselves.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/encode"
	"github.com/pspoerri/tileview/internal/mapview"
	"github.com/pspoerri/tileview/internal/telemetry"
)

// Options configures a Server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Tracing adds a span per request.
	Tracing bool
	// Pending reports the length of the load queue for /api/v1/stats.
	Pending func() int
	// Encoder encodes tile images; PNG when nil.
	Encoder encode.Encoder
}

// Server is the HTTP surface of a Map.
type Server struct {
	m       *mapview.Map
	log     *zap.Logger
	opts    Options
	encoder encode.Encoder
	router  *gin.Engine
	srv     *http.Server
}

// New builds the router for m.
func New(m *mapview.Map, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Encoder == nil {
		opts.Encoder = &encode.PNGEncoder{}
	}
	if opts.Pending == nil {
		opts.Pending = func() int { return 0 }
	}
	s := &Server{m: m, log: log, opts: opts, encoder: opts.Encoder}
	s.router = s.newRouter()
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("starting http server", zap.String("addr", s.opts.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	if s.opts.Tracing {
		r.Use(telemetry.GinMiddleware())
	}
	r.Use(ginZapLogger(s.log))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/viewport", s.getViewport)
	v1.PUT("/viewport", s.putViewport)
	v1.POST("/pan", s.pan)
	v1.POST("/zoom", s.zoom)
	v1.POST("/rotate", s.rotate)
	v1.POST("/reset", s.reset)
	v1.GET("/stats", s.stats)
	v1.GET("/tiles", s.listTiles)
	v1.GET("/tiles/:z/:x/:y", s.tileImage)

	return r
}
