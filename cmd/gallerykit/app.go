package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/fernandezvara/gallerykit"
	"github.com/fernandezvara/gallerykit/internal/api"
	"github.com/fernandezvara/gallerykit/internal/config"
)

// App wires the gallery service to its store, HTTP server and scheduler.
type App struct {
	cfg      *config.Config
	logger   *log.Logger
	db       *dbkit.DBKit
	service  *gallerykit.Service
	health   gallerykit.HealthMonitor
	registry *prometheus.Registry
}

// NewApp opens the configured store and builds the service.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var store gallerykit.Store
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("using the in-memory store, data is lost on exit")
		store = gallerykit.NewMemoryStore()
		app.health = gallerykit.StaticHealth{}
	default:
		db, err := dbkit.New(dbkit.Config{URL: cfg.Database.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db
		store = gallerykit.NewBunStore(db.Bun())
		app.health = gallerykit.NewHealthService(db)
	}

	app.service = gallerykit.NewService(store,
		gallerykit.WithLogger(logger.WithField("component", "gallery")),
		gallerykit.WithMetrics(gallerykit.NewMetrics(app.registry)),
		gallerykit.WithRetryPolicy(gallerykit.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    2 * time.Second,
		}),
	)
	return app, nil
}

// Migrate applies the gallery migrations. It is a no-op for the memory store.
func (app *App) Migrate(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	result, err := app.db.Migrate(ctx, gallerykit.Migrations())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if len(result.Applied) == 0 {
		app.logger.Info("database schema is up to date")
		return nil
	}
	for _, m := range result.Applied {
		app.logger.WithField("migration", m.ID).Info("applied migration")
	}
	return nil
}

// Reconcile runs one repair pass.
func (app *App) Reconcile(ctx context.Context) (int, error) {
	return app.service.Reconcile(ctx)
}

// Serve runs the HTTP API and the reconcile schedule until ctx is cancelled.
func (app *App) Serve(ctx context.Context) error {
	var auth gallerykit.Authenticator
	if app.cfg.JWT.Secret != "" {
		auth = gallerykit.BearerTokenAuthenticator([]byte(app.cfg.JWT.Secret))
	} else {
		app.logger.Warn("no JWT secret configured, every request is anonymous")
	}

	srv := &http.Server{
		Addr: app.cfg.HTTP.Addr,
		Handler: api.NewRouter(api.Options{
			Service:       app.service,
			Authenticator: auth,
			Health:        app.health,
			Gatherer:      app.registry,
			Logger:        app.logger,
		}),
		ReadTimeout:  app.cfg.HTTP.ReadTimeout,
		WriteTimeout: app.cfg.HTTP.WriteTimeout,
	}

	if app.cfg.Reconcile.Enabled {
		scheduler, err := app.scheduleReconcile(ctx)
		if err != nil {
			return err
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (app *App) scheduleReconcile(ctx context.Context) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(app.cfg.Reconcile.Schedule, func() {
		n, err := app.Reconcile(ctx)
		if err != nil {
			app.logger.WithError(err).Error("scheduled reconcile failed")
			return
		}
		if n > 0 {
			app.logger.WithField("repaired", n).Info("scheduled reconcile repaired grants")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", app.cfg.Reconcile.Schedule, err)
	}
	return scheduler, nil
}

// Close closes the database connection.
func (app *App) Close() error {
	if app.db != nil {
		return app.db.Close()
	}
	return nil
}
