package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"videogen-server/internal/adapter/repo"
	"videogen-server/internal/core"
	"videogen-server/internal/infra"
	"videogen-server/internal/notify"
	translateprovider "videogen-server/internal/providers/translate"
	"videogen-server/internal/providers/videogen"
	"videogen-server/internal/translate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: db connection failed")
	}
	defer pool.Close()

	ledger := repo.NewCreditLedger(pool)
	jobs := repo.NewJobRepository(pool)
	cache := repo.NewTranslationCache(pool)

	gateway, err := videogen.NewClient(videogen.Options{
		APIKey:         cfg.VideoGenAPIKey,
		BaseURL:        cfg.VideoGenBaseURL,
		Model:          cfg.VideoGenModel,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: failed to configure provider client")
	}

	remote, err := translateprovider.NewClient(translateprovider.Options{
		APIKey:         cfg.TranslateAPIKey,
		BaseURL:        cfg.TranslateBaseURL,
		TargetLang:     cfg.TranslateTarget,
		RequestTimeout: cfg.TranslateTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: failed to configure translation client")
	}

	orch, err := core.NewOrchestrator(core.Options{
		Ledger:         ledger,
		Jobs:           jobs,
		Gateway:        gateway,
		Translator:     translate.NewTranslator(cache, remote, logger),
		Notifier:       notify.NewWebhook(cfg.AlertWebhookURL, logger),
		CreditCost:     cfg.VideoCreditCost,
		PromptMaxChars: cfg.PromptMaxChars,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("poller: failed to configure orchestrator")
	}

	poller := core.NewPoller(jobs, orch, logger)

	logger.Info().Dur("interval", cfg.SweepInterval).Int("batch", cfg.SweepBatch).Msg("poller: started")
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				logger.Error().Err(ctx.Err()).Msg("poller: stopped with error")
			}
			logger.Info().Msg("poller: stopped")
			return
		case <-ticker.C:
			if _, err := poller.Sweep(ctx, cfg.SweepBatch); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("poller: sweep error")
			}
		}
	}
}
