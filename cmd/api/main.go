package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docgen/docs"
	"docgen/internal/config"
	"docgen/internal/database"
	"docgen/internal/database/migration"
	handlers "docgen/internal/http/handler"
	"docgen/internal/http/middleware"
	"docgen/internal/logger"
	"docgen/internal/metrics"
	"docgen/internal/otel"
	"docgen/internal/processing"
	"docgen/internal/registry"
	"docgen/internal/repository"
	"docgen/internal/repository/file"
	"docgen/internal/repository/postgres"
	"docgen/internal/repository/redisstore"
	"docgen/internal/service"
	"docgen/internal/storage"
)

const (
	shutdownTimeout = 30 * time.Second
	flushTimeout    = 10 * time.Second
)

// @title Docgen API
// @version 1.0
// @description Batch upload, blueprint generation and status tracking.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log := logger.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("docgen stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics, err := metrics.NewPipeline(promReg)
	if err != nil {
		return fmt.Errorf("register pipeline metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(promReg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	store, closeStore, err := openRegistryStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var blobs storage.Storage
	if cfg.Artifact.Cache == "minio" {
		blobs, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return fmt.Errorf("init artifact cache: %w", err)
		}
		log.Info("artifact blob cache enabled", zap.String("bucket", cfg.MinIO.Bucket))
	}

	client, err := processing.NewHTTPClient(cfg.Processing.BaseURL, time.Duration(cfg.Processing.TimeoutSec)*time.Second)
	if err != nil {
		return err
	}

	reg := registry.New()
	persister := service.NewPersister(reg, store, pipelineMetrics, log.Named("persister"))
	if err := persister.Load(ctx); err != nil {
		return err
	}
	persister.Start()

	artifacts := service.NewArtifactCache(client, blobs, cfg.Artifact.SpoolDir, pipelineMetrics, log.Named("artifacts"))
	trigger := service.NewGenerationTrigger(reg, client, time.Duration(cfg.Processing.TimeoutSec)*time.Second, artifacts, pipelineMetrics, log.Named("generation"))
	uploader := service.NewUploadCoordinator(reg, client, trigger, cfg.Pipeline.MaxFileSizeBytes, cfg.Pipeline.MaxBatchSize, pipelineMetrics, log.Named("upload"))
	docSvc := service.NewDocumentService(reg, uploader, trigger, artifacts, store, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    bodyLimit(cfg.Pipeline),
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins(), ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
	}))
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log.Named("http")))
	app.Use(httpMetrics.Handler())
	app.Use(middleware.NewRateLimiter(cfg.RateLimitPerMinute).Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	handlers.RegisterRoutes(app, docSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	listenErr := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("http server listening", zap.String("addr", addr), zap.String("registry_store", cfg.Registry.Store))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	drain(log, shutdownTimeout, flushTimeout, trigger, persister)
	return nil
}

type closer interface {
	Close(ctx context.Context) error
}

// drain stops generation, then saves the registry. Each step has its own deadline.
func drain(log *zap.Logger, grace, flush time.Duration, trigger, persister closer) {
	gctx, gcancel := context.WithTimeout(context.Background(), grace)
	defer gcancel()
	if err := trigger.Close(gctx); err != nil {
		log.Warn("generation calls cancelled at shutdown", zap.Error(err))
	}

	fctx, fcancel := context.WithTimeout(context.Background(), flush)
	defer fcancel()
	if err := persister.Close(fctx); err != nil {
		log.Warn("final registry save", zap.Error(err))
	}
}

// openRegistryStore selects the registry backend named by REGISTRY_STORE.
func openRegistryStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (repository.RegistryStore, func(), error) {
	switch cfg.Registry.Store {
	case "", "file":
		st, err := file.NewRegistryFile(cfg.Registry.File)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil

	case "redis":
		client := redisstore.NewClient(cfg.Redis)
		st := redisstore.NewRegistryRedis(client, cfg.Registry.Key)
		if err := st.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return st, func() { _ = client.Close() }, nil

	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return postgres.NewRegistryPostgres(db, cfg.Registry.Key), closeDB(db), nil

	default:
		return nil, nil, fmt.Errorf("unknown registry store %q", cfg.Registry.Store)
	}
}

func closeDB(db *sql.DB) func() {
	return func() { _ = db.Close() }
}

// bodyLimit leaves room for a full batch plus oversized files that are dropped after parsing.
func bodyLimit(p config.PipelineConfig) int {
	limit := int(p.MaxFileSizeBytes) * max(p.MaxBatchSize, 1) * 4
	return max(limit, 4*1024*1024)
}
