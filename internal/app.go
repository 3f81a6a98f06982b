// Package internal contains core application functionality
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/karloscodes/cartridge"

	"pagelens/internal/analytics"
	"pagelens/internal/config"
	"pagelens/internal/database"
	"pagelens/internal/events"
	"pagelens/internal/http"
	"pagelens/internal/jobs"
	"pagelens/internal/metrics"
	"pagelens/internal/pkg/geoip"
	"pagelens/internal/targets"
)

// Models lists every table the service migrates.
func Models() []any {
	return []any{
		&events.Event{},
		&targets.Business{},
	}
}

// Application owns the server and everything it needs to shut down cleanly.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Server    *fiber.App
	Metrics   *metrics.Metrics
	Recorder  *events.Recorder
	Analytics *analytics.Service
	Scheduler *jobs.Scheduler

	closeCounter func() error
	serveErr     chan error
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig wires the application from cfg. The database is opened
// but not migrated; call Migrate before Start.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := dbManager.GetConnection()

	geoip.Configure(cfg.GeoDBPath, logger)
	m := metrics.NewMetrics(cfg.AppName)

	counter, closeCounter, err := targets.NewCounter(context.Background(), cfg, db, logger)
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize view counter: %w", err)
	}

	recorder := events.NewRecorder(db, logger, events.RecorderOptions{
		Counter:        counter,
		CounterBackend: cfg.CounterBackend,
		CounterTimeout: time.Duration(cfg.CounterTimeoutMillis) * time.Millisecond,
		FilterBots:     cfg.FilterBots,
		Metrics:        m,
	})
	service := analytics.NewService(db, logger, analytics.ServiceOptions{
		Metrics:       m,
		Workers:       cfg.AggregationWorkers,
		QueryTimeout:  time.Duration(cfg.QueryTimeoutSeconds) * time.Second,
		ExportMaxRows: cfg.ExportMaxRows,
	})

	server := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.QueryTimeoutSeconds+30) * time.Second,
		ErrorHandler: errorHandler(logger),
	})
	server.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))

	MountRoutes(server, RouteDeps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Analytics: service,
		Recorder:  recorder,
		Metrics:   m,
	})

	return &Application{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		Server:       server,
		Metrics:      m,
		Recorder:     recorder,
		Analytics:    service,
		Scheduler:    jobs.NewScheduler(logger, jobs.DefaultJobs(cfg, dbManager, m, logger)...),
		closeCounter: closeCounter,
		serveErr:     make(chan error, 1),
	}, nil
}

// errorHandler renders errors that escape the handlers, such as unknown
// routes, in the API envelope.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return http.Fail(c, logger, err)
	}
}

func (a *Application) Migrate() error {
	return a.DBManager.MigrateDatabase(Models()...)
}

// StartAsync starts the background jobs and begins serving in a goroutine.
// Listen errors are reported by Errors.
func (a *Application) StartAsync() error {
	a.Scheduler.Start()

	addr := ":" + a.Config.AppPort
	a.Logger.Info("Starting HTTP server", slog.String("addr", addr), slog.String("environment", a.Config.Environment))
	go func() {
		if err := a.Server.Listen(addr); err != nil {
			a.serveErr <- err
		}
	}()
	return nil
}

// Errors delivers a listen failure, if one happens.
func (a *Application) Errors() <-chan error {
	return a.serveErr
}

// Shutdown stops accepting requests, waits for in-flight ingest side
// effects and releases the stores.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Server.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	a.Scheduler.Stop()

	done := make(chan struct{})
	go func() {
		a.Recorder.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for counter updates: %w", ctx.Err()))
	}

	if a.closeCounter != nil {
		if err := a.closeCounter(); err != nil {
			errs = append(errs, fmt.Errorf("counter: %w", err))
		}
	}
	if err := a.DBManager.CheckpointWAL("TRUNCATE"); err != nil {
		a.Logger.Warn("Final WAL checkpoint failed", slog.Any("error", err))
	}
	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}
