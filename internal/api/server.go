package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"thermal-monitor-go/internal/config"
	"thermal-monitor-go/internal/metrics"
	"thermal-monitor-go/internal/models"
	"thermal-monitor-go/internal/schedule"
)

// EngineStatusSource exposes the event engine snapshot.
type EngineStatusSource interface {
	Status() models.EngineStatus
}

// StreamHealthSource exposes the stream reader snapshot.
type StreamHealthSource interface {
	Health() models.StreamHealth
}

// Server is the local status API: liveness, operating snapshot and
// Prometheus metrics. Read-only; the monitor is driven by configuration,
// not by this surface.
type Server struct {
	cfg     *config.Config
	engine  EngineStatusSource
	stream  StreamHealthSource
	hours   schedule.Hours
	metrics *metrics.Metrics
	server  *http.Server
}

func NewServer(cfg *config.Config, engine EngineStatusSource, stream StreamHealthSource, hours schedule.Hours, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		stream:  stream,
		hours:   hours,
		metrics: m,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", s.health)
	router.GET("/status", s.status)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status   string `json:"status"`
	WorkerID string `json:"worker_id"`
	Version  string `json:"version"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:   "healthy",
		WorkerID: s.cfg.WorkerID,
		Version:  s.cfg.Version,
	})
}

type statusResponse struct {
	WorkerID       string              `json:"worker_id"`
	InHours        bool                `json:"in_operating_hours"`
	OperatingHours string              `json:"operating_hours"`
	Engine         models.EngineStatus `json:"engine"`
	Stream         models.StreamHealth `json:"stream"`
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		WorkerID:       s.cfg.WorkerID,
		InHours:        s.hours.Contains(time.Now()),
		OperatingHours: s.hours.String(),
		Engine:         s.engine.Status(),
		Stream:         s.stream.Health(),
	})
}
