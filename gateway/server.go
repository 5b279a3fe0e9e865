// Package gateway is the HTTP boundary of the conversation service: payload
// validation, prompt-injection filtering, rate limiting, the bounded
// streaming model interaction, and telemetry flush.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/knearme/portfolio-agent/agent/project"
	statex "github.com/knearme/portfolio-agent/agent/state"
	toolx "github.com/knearme/portfolio-agent/agent/tool"
	"github.com/knearme/portfolio-agent/pkg/identity"
	"github.com/knearme/portfolio-agent/pkg/telemetry"
)

type Config struct {
	Host         string        `split_words:"true" default:"0.0.0.0"`
	Port         int           `split_words:"true" default:"8080"`
	RateLimit    int           `split_words:"true" default:"20"`
	RateWindow   time.Duration `split_words:"true" default:"1m"`
	MaxBodyBytes int64         `split_words:"true" default:"1048576"`
}

// ProjectReader loads the rows spliced into trusted context.
type ProjectReader interface {
	Get(ctx context.Context, projectID, businessID string) (*project.Row, error)
	Business(ctx context.Context, businessID string) (*project.BusinessProfile, error)
}

// Deps are the collaborators the gateway dispatches into. Runner may be nil
// when no model backend is configured; /chat then answers 503.
type Deps struct {
	Verifier identity.Verifier
	Runner   ModelRunner
	ToolDeps toolx.Deps
	Projects ProjectReader
	Sessions statex.SessionStore
	Sink     telemetry.Sink

	// SystemPrompt is the base assistant instruction block; the trusted
	// marker and per-request context are prepended per turn.
	SystemPrompt string
}

type Server struct {
	echo    *echo.Echo
	cfg     Config
	deps    Deps
	limiter RateLimiter
}

func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Verifier == nil {
		return nil, errors.New("identity verifier is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())

	s := &Server{
		echo:    e,
		cfg:     cfg,
		deps:    deps,
		limiter: NewFixedWindowLimiter(cfg.RateLimit, cfg.RateWindow),
	}

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/chat", s.handleChat)

	return s, nil
}

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			log.Info().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("http request")
			return err
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("starting gateway")
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down gateway")
	return s.echo.Shutdown(ctx)
}
