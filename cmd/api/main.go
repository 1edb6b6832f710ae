package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"videogen-server/internal/adapter/repo"
	"videogen-server/internal/core"
	httpapi "videogen-server/internal/http"
	"videogen-server/internal/http/handlers"
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

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := infra.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

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
		logger.Fatal().Err(err).Msg("failed to configure generation provider client")
	}

	remote, err := translateprovider.NewClient(translateprovider.Options{
		APIKey:         cfg.TranslateAPIKey,
		BaseURL:        cfg.TranslateBaseURL,
		TargetLang:     cfg.TranslateTarget,
		RequestTimeout: cfg.TranslateTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure translation provider client")
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
		logger.Fatal().Err(err).Msg("failed to configure orchestrator")
	}

	poller := core.NewPoller(jobs, orch, logger)

	app := handlers.NewApp(cfg, logger, orch, jobs, poller)
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
