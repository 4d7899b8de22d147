// Package admin serves the bot's HTTP surface: liveness, readiness,
// Prometheus metrics and a read-only dump of the client State.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/danmuck/ircwire/internal/auth"
	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/observability"
)

const version = "0.1.0"

type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// Token guards /state. Empty leaves it open.
	Token string
}

// StatusFunc reports connection-level status that does not live in State
// (current server, reconnect attempt).
type StatusFunc func() map[string]any

type Server struct {
	cfg     Config
	state   *client.State
	status  StatusFunc
	guard   auth.Validator
	router  *gin.Engine
	started time.Time
	log     zerolog.Logger

	srv *http.Server
	ln  net.Listener
}

func New(cfg Config, st *client.State, status StatusFunc) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	logger := logging.Logger("admin")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	var guard auth.Validator = auth.Open
	if cfg.Token != "" {
		guard = auth.StaticToken{Token: cfg.Token}
	}
	s := &Server{
		cfg:     cfg,
		state:   st,
		status:  status,
		guard:   guard,
		router:  r,
		started: time.Now(),
		log:     logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		reg, ok := client.Get(s.state, client.KeyRegistration)
		ready := ok && len(reg.Phases) > 0 && reg.Phases[len(reg.Phases)-1] == "registered"
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "nick": reg.Nick})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/state", s.requireToken, func(c *gin.Context) {
		body := gin.H{"state": s.state.Snapshot()}
		if s.status != nil {
			body["connection"] = s.status()
		}
		c.JSON(http.StatusOK, body)
	})
}

func (s *Server) requireToken(c *gin.Context) {
	if err := auth.Check(s.guard, c.GetHeader("Authorization")); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.Next()
}

// Serve listens on cfg.Addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")

	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info().Msg("admin stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
