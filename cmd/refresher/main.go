package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/octobees/contractor-intel/internal/config"
	"github.com/octobees/contractor-intel/internal/database"
	"github.com/octobees/contractor-intel/internal/insight"
	"github.com/octobees/contractor-intel/internal/logging"
	"github.com/octobees/contractor-intel/internal/refresh"
	"github.com/octobees/contractor-intel/internal/repository"
	"github.com/octobees/contractor-intel/internal/scraper"
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
		improver  *insight.Improver
	)
	if cfg.OpenAIAPIKey != "" {
		ai := insight.NewClient(nil, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.InsightModel, cfg.JudgeModel, logger)
		generator = ai
		if cfg.EvaluateInsights {
			evaluator = ai
			improver = insight.NewImprover(contractorsRepo, ai, 0, 0, logger)
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, insight generation disabled")
	}

	orchestrator := refresh.NewOrchestrator(contractorsRepo, runsRepo, fetcher, generator, evaluator, logger)

	runAll := func() {
		runAllZipcodes(context.Background(), orchestrator, cfg, logger)
		if improver != nil {
			if _, err := improver.Run(context.Background()); err != nil {
				logger.Error("insight improvement pass failed", zap.Error(err))
			}
		}
	}

	if cfg.RefreshCron == "" {
		runAll()
		return
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RefreshCron, runAll); err != nil {
		logger.Fatal("invalid REFRESH_CRON expression",
			zap.String("cron", cfg.RefreshCron), zap.Error(err))
	}
	scheduler.Start()
	logger.Info("refresher scheduled", zap.String("cron", cfg.RefreshCron))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	logger.Info("refresher stopped")
}

// runAllZipcodes runs one pass per configured zipcode. A failed zipcode never
// stops the others.
func runAllZipcodes(ctx context.Context, orchestrator *refresh.Orchestrator, cfg *config.Config, logger *zap.Logger) {
	var totals refresh.Stats
	start := time.Now()

	for _, zipcode := range cfg.Zipcodes {
		stats, err := orchestrator.Run(ctx, refresh.SearchQuery{
			Zipcode:    zipcode,
			Distance:   cfg.RadiusMiles,
			MaxResults: cfg.MaxResults,
		})
		if err != nil {
			logger.Error("refresh pass failed", zap.String("zipcode", zipcode), zap.Error(err))
			continue
		}
		totals.Add(stats)
	}

	logger.Info("refresh cycle complete",
		zap.Int("zipcodes", len(cfg.Zipcodes)),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("total_found", totals.TotalFound),
		zap.Int("new", totals.NewContractors),
		zap.Int("rescraped", totals.ProfilesRescraped),
		zap.Int("metadata_updated", totals.UpdatedMetadata),
		zap.Int("unchanged", totals.Unchanged))
}
