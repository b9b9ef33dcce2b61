package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/internal/audit"
	"github.com/Ramsey-B/clover/internal/events"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/internal/services"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(load loader) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the CRM HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}

			exporter, err := exporters.New(ctx, cfg.OTLPEnabled, cfg.OTLP(), logger)
			if err != nil {
				return fmt.Errorf("failed to create trace exporter: %w", err)
			}
			shutdownTracing := tracing.Setup(cfg.AppName, exporter)

			var cache *redis.Client
			if cfg.RedisEnabled {
				cache, err = redis.NewClient(cfg.Redis(), logger)
				if err != nil {
					return err
				}
				defer cache.Close()
			}

			db, err := newClient(cfg, logger, cache)
			if err != nil {
				return err
			}

			if cfg.AuditEnabled {
				db.Use(audit.NewRecorder(db, logger).Middleware())
			}
			if cfg.KafkaEnabled {
				producer := kafka.NewProducer(cfg.Kafka(), logger)
				defer producer.Close()
				db.Use(events.Middleware(producer, logger))
			}

			deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)
			deps.AddDependency(db)
			if cfg.DatabaseMigrateOnStart {
				deps.AddDependency(&migrations{db: db, service: database.NewMigrationService(logger, cfg.Migration())})
			}
			if err := deps.Start(ctx); err != nil {
				return err
			}

			checker := health.NewChecker(cfg.Version).Require("postgres", db)
			if cache != nil {
				checker.Optional("redis", cache)
			}

			e := echo.New()
			e.HideBanner = true
			e.HTTPErrorHandler = middleware.Error(logger)
			e.Use(echomw.Recover())
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
				AllowOrigins: cfg.AllowOrigins,
				AllowMethods: cfg.AllowMethods,
			}))
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Context())
			e.Use(middleware.Logger(logger))

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
			checker.RegisterRoutes(e)

			api := e.Group("/api/v1")
			if cfg.AuthEnabled {
				verifier, err := middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
				if err != nil {
					return fmt.Errorf("failed to discover OIDC issuer: %w", err)
				}
				api.Use(middleware.Authentication(logger, verifier))
			}

			handlers.NewTenantHandler(db, logger).RegisterRoutes(api)
			handlers.NewClientHandler(services.NewClientService(db, logger)).RegisterRoutes(api)
			handlers.NewInteractionHandler(db).RegisterRoutes(api)
			handlers.NewSegmentHandler(services.NewSegmentService(db, logger)).RegisterRoutes(api)
			handlers.NewNotificationHandler(services.NewNotificationService(db, logger)).RegisterRoutes(api)
			handlers.NewAuditLogHandler(db).RegisterRoutes(api)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Port),
				Handler:           e,
				ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
				ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Infof("listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()
			checker.SetReady(true)

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err = <-serveErr:
				logger.WithError(err).Error("server stopped")
			}
			checker.SetReady(false)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				logger.WithError(shutdownErr).Error("failed to shut down http server")
			}
			if stopErr := deps.Stop(shutdownCtx); stopErr != nil {
				logger.WithError(stopErr).Error("failed to stop dependencies")
			}
			if tracingErr := shutdownTracing(shutdownCtx); tracingErr != nil {
				logger.WithError(tracingErr).Warn("failed to flush traces")
			}
			return err
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides PORT)")
	return cmd
}
