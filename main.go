package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/config"
	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/handlers"
	"github.com/enmetrica/enpi-engine/pkg/middleware"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
	"github.com/enmetrica/enpi-engine/pkg/retry"
	"github.com/enmetrica/enpi-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", cfg.Database.Database),
		zap.String("database_host", cfg.Database.Host),
		zap.String("redis_host", cfg.Redis.Host))

	ctx := context.Background()

	// The store may still be coming up when we are; connection
	// establishment retries with backoff.
	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient == nil {
		logger.Info("redis not configured, caching disabled")
	}

	// Repositories
	sourceRepo := repositories.NewEnergySourceRepository(db)
	featureRepo := repositories.NewFeatureRepository(db)
	seuRepo := repositories.NewSEURepository(db)
	baselineRepo := repositories.NewBaselineRepository(db)
	performanceRepo := repositories.NewPerformanceRepository(db)
	targetRepo := repositories.NewTargetRepository(db)
	planRepo := repositories.NewActionPlanRepository(db)
	readingsRepo := repositories.NewReadingsRepository(db, cfg.Aggregation.QueryTimeout)

	// The feature catalog is reference data; load and validate it once at
	// startup.
	feats, err := featureRepo.ListAll(ctx)
	if err != nil {
		logger.Fatal("failed to load feature catalog", zap.Error(err))
	}
	registry, err := features.NewRegistry(feats)
	if err != nil {
		logger.Fatal("invalid feature catalog", zap.Error(err))
	}
	planner := &features.PlanBuilder{DegreeDayBaseC: cfg.Policy.DegreeDayBaseC}
	logger.Info("feature catalog loaded", zap.Int("features", len(feats)))

	bands := models.StatusPolicy{
		ExcellentMax: cfg.Policy.ExcellentMaxPct,
		OnTrackMax:   cfg.Policy.OnTrackMaxPct,
		AttentionMax: cfg.Policy.AttentionMaxPct,
	}
	cache := services.NewCache(redisClient, cfg.Redis.BaselineTTL, cfg.Redis.ReportTTL, logger)

	// Services
	baselineSvc := services.NewBaselineService(
		seuRepo, sourceRepo, baselineRepo, readingsRepo,
		registry, planner, cfg.Policy, cache, logger)
	performanceSvc := services.NewPerformanceService(
		seuRepo, sourceRepo, performanceRepo, targetRepo,
		baselineSvc, readingsRepo, registry, planner, cfg.Policy, cache, logger)
	analysisSvc := services.NewAnalysisService(performanceSvc, logger)
	opportunitySvc := services.NewOpportunityService(
		seuRepo, sourceRepo, readingsRepo, registry, planner, cfg.Operations, logger)
	reportSvc := services.NewReportService(
		seuRepo, sourceRepo, performanceRepo, planRepo, bands, cache, logger)
	targetSvc := services.NewTargetService(targetRepo, baselineRepo, seuRepo, logger)
	planSvc := services.NewPlanService(planRepo, seuRepo, sourceRepo, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewBaselineHandler(baselineSvc, logger).RegisterRoutes(mux)
	handlers.NewPerformanceHandler(performanceSvc, logger).RegisterRoutes(mux)
	handlers.NewAnalysisHandler(analysisSvc, logger).RegisterRoutes(mux)
	handlers.NewOpportunityHandler(opportunitySvc, logger).RegisterRoutes(mux)
	handlers.NewReportHandler(reportSvc, logger).RegisterRoutes(mux)
	handlers.NewTargetHandler(targetSvc, logger).RegisterRoutes(mux)
	handlers.NewPlanHandler(planSvc, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting enpi-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
