package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/smartcity/racc-dashboard/internal/config"
	delivery "github.com/smartcity/racc-dashboard/internal/delivery/http"
	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/repository/postgres"
	"github.com/smartcity/racc-dashboard/internal/repository/sqlite"
	"github.com/smartcity/racc-dashboard/internal/service"
	"github.com/smartcity/racc-dashboard/internal/session"
)

// defaultPollInterval applies when neither POLL_INTERVAL nor saved settings set one
const defaultPollInterval = 60 * time.Second

func main() {
	// Configuration
	cfg := config.Load()
	log := cfg.NewLogger()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local state (refresh credential, settings)
	store, err := sqlite.Open(ctx, cfg.StatePath)
	if err != nil {
		log.Error("Could not open state store", "path", cfg.StatePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Snapshot history
	pool := connectDatabase(ctx, cfg.DatabaseURL, log)
	if pool != nil {
		defer pool.Close()
	}

	// Dependency Injection: Repositories
	var snapshotRepo domain.SnapshotRepository
	if pool != nil {
		repo := postgres.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			log.Warn("Snapshot schema migration failed", "error", err)
		}
		snapshotRepo = repo
	} else {
		snapshotRepo = postgres.NewMockRepository()
	}

	// Dependency Injection: Services
	sessions := session.NewManager(session.Options{
		BaseURL:    cfg.APIURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Store:      store,
		Logger:     log,
		CookieMode: cfg.AuthMode == config.AuthModeCookie,
	})
	apiClient := service.NewAPIClient(sessions)

	var source service.IncidentSource = apiClient
	if cfg.DemoMode {
		log.Info("Demo mode: serving synthetic incidents")
		source = service.NewDemoSource(time.Now().UnixNano())
	}
	settings := service.NewSettingsService(store, apiClient, log)

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = defaultPollInterval
		if saved, err := settings.RefreshInterval(ctx); err != nil {
			log.Warn("Could not read saved refresh interval", "error", err)
		} else if saved > 0 {
			pollInterval = saved
		}
	}
	feed := service.NewIncidentFeed(source, snapshotRepo, pollInterval, cfg.RankingSize, log)
	if cfg.PollInterval == 0 {
		settings.Watch(func(s domain.Settings) {
			feed.SetInterval(time.Duration(s.RefreshIntervalSec) * time.Second)
		})
	}

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:               "RACC Dashboard API v1.0",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler:          delivery.ErrorHandler,
		DisableStartupMessage: cfg.IsProduction(),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency}) ${locals:requestid}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	delivery.SetupRoutes(app, delivery.Deps{
		Session:   sessions,
		Feed:      feed,
		Remote:    apiClient,
		Datasets:  service.NewDatasetService(apiClient),
		Settings:  settings,
		Assistant: service.NewAssistant(apiClient, log),
		Repo:      snapshotRepo,
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)

	// Resume the stored session, then start polling
	g.Go(func() error {
		sessions.Restore(gctx)
		return feed.Run(gctx)
	})

	g.Go(func() error {
		log.Info("Server starting", "port", cfg.Port, "api", cfg.APIURL, "auth_mode", cfg.AuthMode)
		return app.Listen(":" + cfg.Port)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Warn("Server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Server error", "error", err)
	}

	feed.WaitBackground()
	log.Info("Server exited gracefully")
}

// connectDatabase returns nil when no database is configured or reachable;
// the server then runs with the in-memory snapshot repository
func connectDatabase(ctx context.Context, url string, log *slog.Logger) *pgxpool.Pool {
	if url == "" {
		log.Info("DATABASE_URL not set, running with mock snapshot history")
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, url)
	if err != nil {
		log.Warn("Could not connect to database, running with mock data only", "error", err)
		return nil
	}
	if err := pool.Ping(connectCtx); err != nil {
		log.Warn("Database unreachable, running with mock data only", "error", err)
		pool.Close()
		return nil
	}

	log.Info("Connected to PostgreSQL")
	return pool
}
