package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/mediagatehq/mediagate/internal/channel/cloudapi"
	"github.com/mediagatehq/mediagate/internal/channel/twilio"
	"github.com/mediagatehq/mediagate/internal/config"
	"github.com/mediagatehq/mediagate/internal/db"
	"github.com/mediagatehq/mediagate/internal/destinations"
	"github.com/mediagatehq/mediagate/internal/dispatch"
	"github.com/mediagatehq/mediagate/internal/groups"
	"github.com/mediagatehq/mediagate/internal/handlers"
	"github.com/mediagatehq/mediagate/internal/logger"
	"github.com/mediagatehq/mediagate/internal/media"
	"github.com/mediagatehq/mediagate/internal/queue"
	"github.com/mediagatehq/mediagate/internal/server"
	"github.com/mediagatehq/mediagate/internal/storage"
	"github.com/mediagatehq/mediagate/internal/storage/providers/localfs"
	s3provider "github.com/mediagatehq/mediagate/internal/storage/providers/s3"
	"github.com/mediagatehq/mediagate/internal/webhooklog"
	"github.com/mediagatehq/mediagate/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			provideLogger,
			provideDBConn,
			provideStorageProvider,
			provideHTTPClient,
			provideWhatsAppClient,
			webhooklog.NewService,
			groups.NewService,
			provideMediaService,
			destinations.NewService,
			provideQueueService,
			provideTwilioProcessor,
			provideCloudProcessor,
			dispatch.NewDispatcher,
			provideDispatchProcessor,
			provideDispatchRunner,
			handlers.NewPingHandler,
			provideTwilioWebhookHandler,
			provideCloudWebhookHandler,
			provideSendHandler,
			provideMediaHandler,
			handlers.NewQueueHandler,
			handlers.NewDestinationsHandler,
			handlers.NewDispatchHandler,
			handlers.NewLogsHandler,
			handlers.NewGroupsHandler,
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startDispatchRunner,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logger.New(cfg.Log)
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideStorageProvider(cfg config.Config) (storage.Provider, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return s3provider.New(cfg.Storage)
	case "", "local":
		return localfs.New(cfg.Storage.Root, cfg.Storage.BaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func provideHTTPClient(cfg config.Config) *http.Client {
	timeout := time.Duration(cfg.Dispatch.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	timeout := time.Duration(cfg.Dispatch.HTTPTimeoutSeconds) * time.Second
	return whatsapp.NewClient(log, cfg.WhatsApp, timeout)
}

func provideMediaService(log *slog.Logger, pool *pgxpool.Pool, provider storage.Provider) *media.Service {
	return media.NewService(log, pool, provider)
}

func provideQueueService(log *slog.Logger, pool *pgxpool.Pool) *queue.Service {
	return queue.NewService(log, pool)
}

func provideTwilioProcessor(log *slog.Logger, mediaService *media.Service, logService *webhooklog.Service, groupService *groups.Service, httpClient *http.Client, cfg config.Config) *twilio.Processor {
	return twilio.NewProcessor(log, mediaService, logService, groupService, httpClient, cfg.Twilio)
}

func provideCloudProcessor(log *slog.Logger, mediaService *media.Service, logService *webhooklog.Service, groupService *groups.Service, client *whatsapp.Client) *cloudapi.Processor {
	return cloudapi.NewProcessor(log, mediaService, logService, groupService, client)
}

func provideDispatchProcessor(log *slog.Logger, queueService *queue.Service, mediaService *media.Service, destService *destinations.Service, dispatcher *dispatch.Dispatcher, cfg config.Config) *dispatch.Processor {
	return dispatch.NewProcessor(log, queueService, mediaService, destService, dispatcher, cfg.Dispatch, cfg.Storage.SignedURLTTL)
}

func provideDispatchRunner(log *slog.Logger, processor *dispatch.Processor, cfg config.Config) (*dispatch.Runner, error) {
	return dispatch.NewRunner(log, processor, cfg.Dispatch.CronSchedule)
}

func provideTwilioWebhookHandler(log *slog.Logger, processor *twilio.Processor) *handlers.TwilioWebhookHandler {
	return handlers.NewTwilioWebhookHandler(log, processor)
}

func provideCloudWebhookHandler(log *slog.Logger, processor *cloudapi.Processor, cfg config.Config) *handlers.CloudWebhookHandler {
	return handlers.NewCloudWebhookHandler(log, processor, cfg.WhatsApp.VerifyToken)
}

func provideSendHandler(log *slog.Logger, client *whatsapp.Client, logService *webhooklog.Service) *handlers.SendHandler {
	return handlers.NewSendHandler(log, client, logService)
}

func provideMediaHandler(log *slog.Logger, service *media.Service, cfg config.Config) *handlers.MediaHandler {
	return handlers.NewMediaHandler(log, service, cfg.Storage.SignedURLTTL)
}

func provideServer(log *slog.Logger, cfg config.Config, pingHandler *handlers.PingHandler, twilioHandler *handlers.TwilioWebhookHandler, cloudHandler *handlers.CloudWebhookHandler, sendHandler *handlers.SendHandler, mediaHandler *handlers.MediaHandler, queueHandler *handlers.QueueHandler, destinationsHandler *handlers.DestinationsHandler, dispatchHandler *handlers.DispatchHandler, logsHandler *handlers.LogsHandler, groupsHandler *handlers.GroupsHandler) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, pingHandler, twilioHandler, cloudHandler, sendHandler, mediaHandler, queueHandler, destinationsHandler, dispatchHandler, logsHandler, groupsHandler)
}

func runMigrations(log *slog.Logger, cfg config.Config) error {
	if err := db.RunMigrations(cfg.Postgres); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("migrations up to date")
	return nil
}

func startDispatchRunner(lc fx.Lifecycle, runner *dispatch.Runner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			runner.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
