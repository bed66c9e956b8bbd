// Package status serves the gateway's read-only HTTP surface: liveness,
// readiness tied to the listener state, Prometheus metrics and the recent
// outcome history.
package status

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/qrgate/internal/auth"
	"github.com/danmuck/qrgate/internal/ingest"
	"github.com/danmuck/qrgate/internal/notify"
	"github.com/danmuck/qrgate/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Version is reported by /health and the CLI. Release builds set it with
// -ldflags "-X github.com/danmuck/qrgate/internal/status.Version=<tag>".
var Version = "dev"

const (
	maxOutcomeLimit = 1000
	shutdownTimeout = 5 * time.Second
)

// StateProbe reports the current listener lifecycle state.
type StateProbe interface {
	ListenerState() ingest.State
}

// OutcomeSource exposes recently delivered outcomes.
type OutcomeSource interface {
	Recent(limit int) []notify.Outcome
	Stops() []notify.StopEvent
	Totals() (success, failure uint64)
}

type Config struct {
	ID          string
	Addr        string
	Token       string
	CorsOrigins []string
}

type Server struct {
	cfg     Config
	probe   StateProbe
	history OutcomeSource
	router  *gin.Engine
	started time.Time
}

func New(cfg Config, probe StateProbe, history OutcomeSource) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPObserver(log.Logger, cfg.ID))
	if origins := normalizeOrigins(cfg.CorsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Authorization", observability.RequestIDHeader},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:     cfg,
		probe:   probe,
		history: history,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"id":      s.cfg.ID,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		state := ingest.StateStopped
		if s.probe != nil {
			state = s.probe.ListenerState()
		}
		code := http.StatusOK
		if !state.Serving() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready": state.Serving(),
			"state": state.String(),
			"id":    s.cfg.ID,
		})
	})

	s.router.GET("/outcomes", s.requireToken(), func(c *gin.Context) {
		if s.history == nil {
			c.JSON(http.StatusOK, gin.H{"outcomes": []notify.Outcome{}})
			return
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		success, failure := s.history.Totals()
		c.JSON(http.StatusOK, gin.H{
			"outcomes": s.history.Recent(limit),
			"stops":    s.history.Stops(),
			"totals":   gin.H{"success": success, "failure": failure},
		})
	})
}

// requireToken is a no-op when no token is configured.
func (s *Server) requireToken() gin.HandlerFunc {
	validator := auth.StaticToken{Token: s.cfg.Token}
	return func(c *gin.Context) {
		if s.cfg.Token == "" {
			c.Next()
			return
		}
		if err := auth.CheckHeader(validator, c.GetHeader("Authorization")); err != nil {
			log.Debug().Str("path", c.Request.URL.Path).Err(err).Msg("status.auth rejected request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.cfg.Addr).Msg("status.Server.Run listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		log.Info().Str("addr", s.cfg.Addr).Msg("status.Server.Run stopped")
		return nil
	}
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if n > maxOutcomeLimit {
		n = maxOutcomeLimit
	}
	return n, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}
