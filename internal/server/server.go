// Package server wires the HTTP surface. Webhook endpoints are called by
// Twilio and Meta, the /api endpoints by the review dashboard; CORS is
// wide open on all of them because the dashboard origin is not fixed.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mediagatehq/mediagate/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(log *slog.Logger, addr string, pingHandler *handlers.PingHandler, twilioHandler *handlers.TwilioWebhookHandler, cloudHandler *handlers.CloudWebhookHandler, sendHandler *handlers.SendHandler, mediaHandler *handlers.MediaHandler, queueHandler *handlers.QueueHandler, destinationsHandler *handlers.DestinationsHandler, dispatchHandler *handlers.DispatchHandler, logsHandler *handlers.LogsHandler, groupsHandler *handlers.GroupsHandler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"authorization", "x-client-info", "apikey", "content-type"},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency))
			return nil
		},
	}))

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if twilioHandler != nil {
		twilioHandler.Register(e)
	}
	if cloudHandler != nil {
		cloudHandler.Register(e)
	}
	if sendHandler != nil {
		sendHandler.Register(e)
	}
	if mediaHandler != nil {
		mediaHandler.Register(e)
	}
	if queueHandler != nil {
		queueHandler.Register(e)
	}
	if destinationsHandler != nil {
		destinationsHandler.Register(e)
	}
	if dispatchHandler != nil {
		dispatchHandler.Register(e)
	}
	if logsHandler != nil {
		logsHandler.Register(e)
	}
	if groupsHandler != nil {
		groupsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
