// Package status serves the engine's live state over HTTP.
package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/mcdu429/internal/database"
	"github.com/dbehnke/mcdu429/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultTraceLimit = 50
	maxTraceLimit     = 1000
	shutdownTimeout   = 5 * time.Second
)

// EngineView is the read side of the engine.
type EngineView interface {
	Status() []transport.EndpointStatus
	Counters() (ticks, skipped uint64)
}

// TraceReader returns journaled bus words, newest first.
type TraceReader interface {
	Recent(endpoint string, limit int) ([]database.BusTrace, error)
}

// JournalStats reports journal throughput.
type JournalStats interface {
	Written() uint64
	Dropped() uint64
}

// Server is the status API.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	engine  EngineView
	traces  TraceReader
	journal JournalStats
	started time.Time
	log     zerolog.Logger
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithTraces enables GET /traces.
func WithTraces(r TraceReader) Option { return func(s *Server) { s.traces = r } }

// WithJournal adds journal counters to /health.
func WithJournal(j JournalStats) Option { return func(s *Server) { s.journal = j } }

func New(listen string, engine EngineView, log zerolog.Logger, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  engine,
		started: time.Now(),
		log:     log.With().Str("component", "status").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.log))
	r.Use(requestMetrics())
	s.router = r
	s.routes()

	s.http = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/health", s.health)
	s.router.GET("/status", s.statusAll)
	s.router.GET("/status/:endpoint", s.statusOne)
	s.router.GET("/traces", s.recentTraces)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) health(c *gin.Context) {
	ticks, skipped := s.engine.Counters()
	body := gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"ticks":         ticks,
		"ticks_skipped": skipped,
	}
	if s.journal != nil {
		body["journal_written"] = s.journal.Written()
		body["journal_dropped"] = s.journal.Dropped()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) statusAll(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"endpoints": s.engine.Status()})
}

func (s *Server) statusOne(c *gin.Context) {
	name := c.Param("endpoint")
	for _, st := range s.engine.Status() {
		if st.Name == name {
			c.JSON(http.StatusOK, st)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "unknown endpoint " + strconv.Quote(name)})
}

func (s *Server) recentTraces(c *gin.Context) {
	if s.traces == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit := defaultTraceLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTraceLimit)
	}
	traces, err := s.traces.Recent(c.Query("endpoint"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}

// Run serves until ctx is done, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.http.Addr).Msg("status API listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
