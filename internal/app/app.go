package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/driverlog/internal/audit"
	"github.com/wisbric/driverlog/internal/auth"
	"github.com/wisbric/driverlog/internal/blob"
	"github.com/wisbric/driverlog/internal/config"
	"github.com/wisbric/driverlog/internal/httpserver"
	"github.com/wisbric/driverlog/internal/platform"
	"github.com/wisbric/driverlog/internal/telemetry"
	"github.com/wisbric/driverlog/pkg/incident"
	"github.com/wisbric/driverlog/pkg/installation"
	"github.com/wisbric/driverlog/pkg/photo"
	"github.com/wisbric/driverlog/pkg/stats"
	"github.com/wisbric/driverlog/pkg/webuser"
)

// Run is the main application entry point. It connects to infrastructure,
// mounts the API, and serves until the context is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting driverlog", "listen", cfg.ListenAddr())

	// Database
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	// Redis backs the login rate limiter; optional.
	rateLimiter := auth.NewLoginLimiter(nil)
	if cfg.RedisURL != "" {
		rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
		rateLimiter = auth.NewLoginLimiter(rdb)
		logger.Info("login rate limiter enabled")
	} else {
		logger.Info("login rate limiter disabled (REDIS_URL not set)")
	}

	// Blob store; optional. Photo routes answer 500 until configured.
	var blobs blob.ObjectStore
	if cfg.BlobConfigured() {
		r2, err := blob.NewR2Store(ctx, blob.R2Options{
			Endpoint:        cfg.R2Endpoint,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			Bucket:          cfg.IncidentsBucket,
		})
		if err != nil {
			return fmt.Errorf("initializing blob store: %w", err)
		}
		blobs = r2
		logger.Info("blob store enabled", "bucket", cfg.IncidentsBucket)
	} else {
		logger.Info("blob store disabled (R2/INCIDENTS_BUCKET not fully configured)")
	}

	// Session manager; nil leaves /web/* answering 503.
	var sessions *auth.SessionManager
	if cfg.WebSessionSecret != "" {
		sessions, err = auth.NewSessionManager(cfg.WebSessionSecret)
		if err != nil {
			return fmt.Errorf("creating session manager: %w", err)
		}
	} else {
		logger.Info("web sessions disabled (WEB_SESSION_SECRET not set)")
	}

	// Audit writer for the service's own mutation trail.
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)
	srv := httpserver.NewServer(cfg.CORSAllowedOrigins, logger, db, nil, metricsReg)

	// Domain handlers.
	incidentHandler := incident.NewHandler(logger, db, db, auditWriter)
	photoHandler := photo.NewHandler(logger, db, blobs, auditWriter)
	installationHandler := installation.NewHandler(logger, db, auditWriter, incidentHandler.Routes())
	statsHandler := stats.NewHandler(logger, db)
	auditHandler := audit.NewHandler(logger, db)

	userStore := webuser.NewStore(db)
	userHandler := webuser.NewHandler(logger, db, sessions, rateLimiter, cfg.WebLoginPassword, auditWriter)

	hmac := auth.NewHMACVerifier(cfg.APIToken, cfg.APISecret, logger)
	sessionMW := auth.SessionMiddleware(sessions, userStore, logger)

	// Machine-to-machine surface: HMAC-signed requests.
	srv.Router.Group(func(r chi.Router) {
		r.Use(hmac.Middleware)
		r.Mount("/installations", installationHandler.Routes())
		r.Mount("/records", installationHandler.RecordRoutes())
		r.Mount("/incidents", photoHandler.UploadRoutes())
		r.Mount("/photos", photoHandler.FetchRoutes())
		r.Mount("/statistics", statsHandler.Routes())
		r.Mount("/audit-logs", auditHandler.Routes())
	})

	// Web console surface: session twins of the same handlers, plus auth and
	// user management.
	srv.Router.Route("/web", func(r chi.Router) {
		r.Mount("/auth", userHandler.Routes(sessionMW))

		r.Group(func(r chi.Router) {
			r.Use(sessionMW)
			r.Mount("/installations", installationHandler.Routes())
			r.Mount("/records", installationHandler.RecordRoutes())
			r.Mount("/incidents", photoHandler.UploadRoutes())
			r.Mount("/photos", photoHandler.FetchRoutes())
			r.Mount("/statistics", statsHandler.Routes())
			r.Mount("/audit-logs", auditHandler.Routes())
		})
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
