package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gamevyo/qblimiter/internal/api/handlers"
	apimw "github.com/gamevyo/qblimiter/internal/api/middleware"
	"github.com/gamevyo/qblimiter/internal/notification"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("1M"))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, apimw.HeaderAPIKey},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	auth := apimw.APIKey(s.cfg.Server.APIKey)

	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket, auth)
	}

	api := s.echo.Group("/api/v1", auth)
	api.GET("/status", s.getStatus)

	plugins := api.Group("/plugins")
	plugins.GET("", s.listPlugins)
	plugins.GET("/:id/form", s.getPluginForm)
	plugins.GET("/:id/config", s.getPluginConfig)
	plugins.PUT("/:id/config", s.updatePluginConfig)
	plugins.DELETE("/:id", s.uninstallPlugin)

	commands := api.Group("/commands")
	commands.GET("", s.listCommands)
	commands.POST("", s.executeCommand, s.commandLimiter.Middleware())

	schedulerHandler := handlers.NewSchedulerHandler(s.scheduler)
	sched := api.Group("/scheduler")
	sched.GET("/tasks", schedulerHandler.ListTasks)
	sched.GET("/tasks/:id", schedulerHandler.GetTask)
	sched.POST("/tasks/:id/run", schedulerHandler.RunTask)

	downloaders := api.Group("/downloaders")
	downloaders.GET("", s.listDownloaders)
	downloaders.POST("/:name/test", s.testDownloader)
	downloaders.GET("/:name/transfer", s.getTransferInfo)

	if s.notifications != nil {
		notification.NewHandlers(s.notifications).RegisterRoutes(api.Group("/notifications"))
	}

	if s.logs != nil {
		logs := api.Group("/logs")
		logs.GET("", s.listLogs)
		logs.GET("/download", s.downloadLogFile)
	}
}
