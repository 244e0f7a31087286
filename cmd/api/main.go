package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"invoicesheet/docs"
	"invoicesheet/internal/config"
	"invoicesheet/internal/credentials"
	"invoicesheet/internal/database"
	"invoicesheet/internal/database/migration"
	"invoicesheet/internal/extract"
	handlers "invoicesheet/internal/http/handler"
	"invoicesheet/internal/http/middleware"
	"invoicesheet/internal/ledger"
	"invoicesheet/internal/metrics"
	"invoicesheet/internal/otel"
	"invoicesheet/internal/repository/postgres"
	"invoicesheet/internal/service"
	"invoicesheet/internal/sheets"
	"invoicesheet/internal/storage"
)

const maxUploadBytes = 20 << 20

// @title Invoice Sheet API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET is required")
	}

	shutdownTracing, err := otel.Init(context.Background(), logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(ctx)
	}()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migration.EnsureMigrated(context.Background(), db, logger); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	// Archival is optional: without object storage the pipeline still runs,
	// only original-upload retention is disabled.
	var archive storage.Archive
	if cfg.MinIO.Endpoint != "" {
		archive, err = storage.NewMinIO(cfg.MinIO)
		if err != nil {
			logger.Fatal("failed to initialize object storage", zap.Error(err))
		}
	} else {
		logger.Warn("object storage not configured, upload archival disabled")
	}

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	promMW, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		logger.Fatal("failed to register http metrics", zap.Error(err))
	}

	logRepo := postgres.NewUsageLogPostgres(db, m)
	profileRepo := postgres.NewProfilePostgres(db, m)
	usageLedger := ledger.New(logRepo, profileRepo, logger)

	extractor, err := extract.NewOpenAIClient(cfg.Extraction, logger)
	if err != nil {
		logger.Fatal("failed to initialize extraction client", zap.Error(err))
	}
	refresher := credentials.NewGoogleRefresher(cfg.OAuth, logger)
	writer := sheets.NewGoogleWriter(cfg.Sheets, logger)

	svc := service.NewProcessor(usageLedger, profileRepo, logRepo,
		extractor, refresher, writer, archive, m, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    maxUploadBytes,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(logger))
	app.Use(otelfiber.Middleware())
	app.Use(promMW.Handler())

	handlers.RegisterRoutes(app, db, svc, middleware.Auth(cfg.Auth.JWTSecret), registry)

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

	addr := ":" + cfg.Port
	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
