package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"veritas/internal/analysis"
	"veritas/internal/api"
	"veritas/internal/cache"
	"veritas/internal/config"
	fileutil "veritas/internal/file"
	"veritas/internal/history"
	"veritas/internal/provider"
	"veritas/internal/resilience"
	"veritas/internal/task"
)

const readHeaderTimeout = 5 * time.Second

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := fileutil.EnsureDir(cfg.DataDir); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("ensure data dir")
	}

	analysisCache := buildCache(cfg)
	historyRepo := buildHistory(cfg)
	chain := buildChain(cfg)

	svcOpts := analysis.Options{
		Chain:       chain,
		Cache:       analysisCache,
		DataDir:     cfg.DataDir,
		AutoSave:    cfg.AutoSaveResults,
		Primary:     cfg.Providers.Primary,
		Fallbacks:   cfg.Providers.Fallbacks,
		DefaultMode: cfg.AttitudeMode,
	}
	if historyRepo != nil {
		svcOpts.History = historyRepo
	}
	service := analysis.NewService(svcOpts)

	manager := task.NewManagerWithOptions(task.LogListener{}, task.Options{
		ShutdownGrace: cfg.Task.ShutdownGrace(),
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestLogger())

	apiHandler := api.NewAPI(manager, service, cfg.Task.DefaultTimeout())
	apiHandler.RegisterRoutes(router)
	apiHandler.RegisterUIRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()
	gracefulShutdown(srv, manager, analysisCache, historyRepo)
}

func configPath() string {
	if path := os.Getenv("VERITAS_CONFIG"); path != "" {
		return path
	}
	return "config.yml"
}

func buildCache(cfg config.Config) *cache.Cache {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("analysis cache disabled (no redis addr configured)")
		return nil
	}
	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.TTL())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect analysis cache")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("analysis cache connected")
	return c
}

func buildHistory(cfg config.Config) *history.PostgresRepository {
	if cfg.Postgres.DSN == "" {
		log.Info().Msg("analysis history disabled (no postgres dsn configured)")
		return nil
	}
	repo, err := history.NewPostgresRepository(cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect analysis history")
	}
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure history schema")
	}
	log.Info().Msg("analysis history connected")
	return repo
}

func buildChain(cfg config.Config) *provider.Chain {
	retry := resilience.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialDelay:    cfg.Retry.InitialDelay(),
		MaxDelay:        cfg.Retry.MaxDelay(),
		ExponentialBase: cfg.Retry.ExponentialBase,
	}
	chain := provider.NewChain(provider.ChainOptions{
		Breaker: resilience.BreakerOptions{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			RecoveryTimeout:  cfg.Breaker.RecoveryTimeout(),
			// A user cancelling their task says nothing about provider
			// health, so it must not count toward opening the breaker.
			FailureClass: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
		},
		Retry: &retry,
	})

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		chain.Register("openai", provider.NewOpenAI(key, cfg.Providers.OpenAIModel))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		chain.Register("anthropic", provider.NewAnthropic(key, cfg.Providers.AnthropicModel))
	}
	chain.Register("ollama", provider.NewOllama(cfg.Providers.OllamaEndpoint, cfg.Providers.OllamaModel))

	names := chain.Names()
	if len(names) == 0 {
		log.Fatal().Msg("no providers configured")
	}
	log.Info().Strs("providers", names).Str("primary", cfg.Providers.Primary).Msg("provider chain ready")
	return chain
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, manager *task.Manager, analysisCache *cache.Cache, historyRepo *history.PostgresRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	manager.Shutdown()

	if analysisCache != nil {
		if err := analysisCache.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close analysis cache")
		}
	}
	if historyRepo != nil {
		if err := historyRepo.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close analysis history")
		}
	}
	log.Info().Msg("server exited cleanly")
}
