package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/config"
	"github.com/octobees/contractor-intel/internal/database"
	"github.com/octobees/contractor-intel/internal/handler"
	"github.com/octobees/contractor-intel/internal/insight"
	"github.com/octobees/contractor-intel/internal/logging"
	middlewarepkg "github.com/octobees/contractor-intel/internal/middleware"
	"github.com/octobees/contractor-intel/internal/refresh"
	"github.com/octobees/contractor-intel/internal/repository"
	"github.com/octobees/contractor-intel/internal/scraper"
	"github.com/octobees/contractor-intel/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}

	contractorsRepo := repository.NewPGXContractorsRepository(pool, logger)
	runsRepo := repository.NewPGXRunsRepository(pool)

	fetcher := scraper.NewClient(nil, cfg.ScraperBaseURL, cfg.RateLimitDetail, logger)

	var (
		generator refresh.InsightGenerator
		evaluator refresh.InsightEvaluator
	)
	if cfg.OpenAIAPIKey != "" {
		ai := insight.NewClient(nil, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.InsightModel, cfg.JudgeModel, logger)
		generator = ai
		if cfg.EvaluateInsights {
			evaluator = ai
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, insight generation disabled")
	}

	orchestrator := refresh.NewOrchestrator(contractorsRepo, runsRepo, fetcher, generator, evaluator, logger)

	contractorsService := service.NewContractorsService(contractorsRepo)

	contractorsHandler := handler.NewContractorsHandler(contractorsService)
	runsHandler := handler.NewRunsHandler(runsRepo)
	statsHandler := handler.NewStatsHandler(contractorsRepo, runsRepo)

	defaults := refresh.SearchQuery{Distance: cfg.RadiusMiles, MaxResults: cfg.MaxResults}
	if len(cfg.Zipcodes) > 0 {
		defaults.Zipcode = cfg.Zipcodes[0]
	}
	refreshHandler := handler.NewRefreshHandler(orchestrator, defaults, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging(logger))
	e.Use(echoMiddleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return handler.Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok"})
	})

	e.GET("/contractors", contractorsHandler.List)
	e.GET("/contractors/:id", contractorsHandler.Get)
	e.GET("/stats", statsHandler.Stats)
	e.GET("/locations", statsHandler.Locations)
	e.GET("/runs", runsHandler.List)
	e.GET("/runs/:id", runsHandler.Get)
	e.POST("/refresh", refreshHandler.Trigger, middlewarepkg.RefreshRateLimiter(cfg.RateLimitRefresh))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + cfg.Port)
	}()
	logger.Info("api listening", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
