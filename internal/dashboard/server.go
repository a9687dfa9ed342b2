// Package dashboard exposes the aggregation engine over HTTP. The layer is
// deliberately thin: decode the path parameter, call the engine, write JSON.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cometflow/config"
	"cometflow/internal/aggregator"
	"cometflow/logger"
)

// Server hosts the Gin-powered data API for the comet dashboard.
type Server struct {
	cfg        config.DashboardConfig
	engine     *aggregator.Engine
	log        *logger.Log
	httpServer *http.Server
}

// NewServer constructs the HTTP server when the dashboard is enabled. When
// disabled the returned server is nil and every method is a no-op.
func NewServer(cfg config.DashboardConfig, engine *aggregator.Engine, log *logger.Log) *Server {
	if !cfg.Enabled {
		return nil
	}
	cfg.Address = normalizeAddress(cfg.Address)
	return &Server{cfg: cfg, engine: engine, log: log}
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// listener exits with an error.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"address": s.cfg.Address,
	}).Info("dashboard server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	// designations contain a slash ("3I/ATLAS"); clients escape it as %2F
	// and the router must match on the raw path for that to stay one segment
	router.UseRawPath = true
	router.UnescapePathValues = true
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	api := router.Group("/api")
	api.GET("/comet/:designation", s.handleComet)
	api.GET("/comet/:designation/activity", s.handleActivity)
	api.GET("/position/:designation", s.handlePosition)
	api.GET("/positions", s.handlePositions)
	api.GET("/health", s.handleHealth)
	api.GET("/dedup/stats", s.handleDedupStats)

	return router, nil
}

func (s *Server) handleComet(c *gin.Context) {
	designation := c.Param("designation")
	record := s.engine.GetEnhancedState(c.Request.Context(), designation)
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleActivity(c *gin.Context) {
	designation := c.Param("designation")
	result := s.engine.GetActivity(c.Request.Context(), designation)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePosition(c *gin.Context) {
	designation := c.Param("designation")
	pos := s.engine.GetOrbitalPosition(designation, time.Now().UTC())
	if pos == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no position available for " + designation})
		return
	}
	c.JSON(http.StatusOK, pos)
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.engine.SolarSystemPositions()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.engine.Health()})
}

func (s *Server) handleDedupStats(c *gin.Context) {
	stats := s.engine.DedupStats()
	c.JSON(http.StatusOK, gin.H{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"hit_rate": stats.HitRate,
	})
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
