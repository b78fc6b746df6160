//nolint:revive // Package name 'api' is intentionally generic for the HTTP API layer
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/gamevyo/qblimiter/internal/api/ratelimit"
	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/notification"
	"github.com/gamevyo/qblimiter/internal/plugin"
	"github.com/gamevyo/qblimiter/internal/scheduler"
	"github.com/gamevyo/qblimiter/internal/websocket"
)

// Version is reported by the status endpoint.
var Version = "dev"

// Services are the host components exposed over HTTP. Hub and Logs are optional.
type Services struct {
	Plugins       *plugin.Manager
	Scheduler     *scheduler.Scheduler
	Downloaders   *downloader.Service
	Notifications *notification.Service
	Bus           *eventbus.Bus
	Hub           *websocket.Hub
	Logs          LogsProvider
}

// Server handles HTTP requests for the qblimiter API.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	logger    zerolog.Logger
	startTime time.Time

	plugins        *plugin.Manager
	scheduler      *scheduler.Scheduler
	downloaders    *downloader.Service
	notifications  *notification.Service
	bus            *eventbus.Bus
	hub            *websocket.Hub
	logs           LogsProvider
	commandLimiter *ratelimit.Limiter
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, svc Services, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		cfg:            cfg,
		logger:         logger.With().Str("component", "api").Logger(),
		startTime:      time.Now(),
		plugins:        svc.Plugins,
		scheduler:      svc.Scheduler,
		downloaders:    svc.Downloaders,
		notifications:  svc.Notifications,
		bus:            svc.Bus,
		hub:            svc.Hub,
		logs:           svc.Logs,
		commandLimiter: ratelimit.NewLimiter(ratelimit.DefaultRequestsPerMinute, time.Minute),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
