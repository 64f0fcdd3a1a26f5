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

	"sjsage522/pricescout/config"
	"sjsage522/pricescout/internal"
	"sjsage522/pricescout/internal/api"
	"sjsage522/pricescout/internal/crawler"
	"sjsage522/pricescout/internal/search"
	"sjsage522/pricescout/logger"
	"sjsage522/pricescout/services/cache"
	"sjsage522/pricescout/services/publisher"
	"sjsage522/pricescout/services/rates"
	"sjsage522/pricescout/services/store"
	"sjsage522/pricescout/services/worker"

	"github.com/joho/godotenv"
)

const warmQueryLimit = 20

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default
	if envErr != nil {
		logger.Debug("No .env file loaded: %v", envErr)
	}

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("reference_currency", cfg.ReferenceCurrency).
		Dur("fetch_deadline", cfg.FetchDeadline).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer deps.Cleanup()

	// Create sources
	sources, err := crawler.CreateSources(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sources")
	}
	log.Info().Int("source_count", len(sources)).Msg("Loaded sources")

	fetcher := crawler.NewFetcher(deps.Cache, cfg.RequestTimeout, cfg.SourceBlock, cfg.MinDelay, cfg.MaxDelay)
	coordinator := crawler.NewCoordinator(fetcher, cfg.MaxConcurrency)

	svc := search.NewService(search.NewPipeline(coordinator), search.Options{
		Sources:   sources,
		Rates:     deps.Rates,
		Cache:     deps.Cache,
		CacheTTL:  cfg.CacheTTL,
		Store:     deps.Store,
		Publisher: deps.Publisher,
		Deadline:  cfg.FetchDeadline,
	})

	if cfg.WarmSchedule != "" {
		w := worker.NewWorker(ctx, svc, deps.Publisher, warmQueryLimit)
		if err := w.Start(cfg.WarmSchedule); err != nil {
			log.Fatal().Err(err).Msg("Failed to start cache warmer")
		}
		defer w.Stop()
	}

	handlers := api.NewHandlers(svc, api.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		ReferenceCurrency:  cfg.ReferenceCurrency,
		SourceCount:        len(sources),
		RatesStatus:        deps.Rates.Status,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.FetchDeadline + 30*time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting HTTP server")
		serverDone <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case err := <-serverDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server exited with error")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	// Initialize cache service
	switch cfg.CacheBackend {
	case config.CacheRedis:
		redisCache := cache.NewRedisService(ctx, cfg.RedisAddr, cfg.RedisDB, "pricescout:")
		if err := redisCache.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis cache at %s: %w", cfg.RedisAddr, err)
		}
		deps.Cache = redisCache
		logger.Info("Connected to Redis cache at %s (DB: %d)", cfg.RedisAddr, cfg.RedisDB)
	case config.CacheMemcache:
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to memcache at %s: %w", cfg.MemcacheAddr, err)
		}
		deps.Cache = memcacheService
		logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
	default:
		deps.Cache = cache.NewMemoryService(nil)
		logger.Info("Using in-memory cache")
	}

	// Initialize publisher
	if cfg.RedisStream != "" {
		redisPublisher := publisher.NewRedisPublisher(
			ctx,
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(); err != nil {
			redisPublisher.Close()
			deps.Cleanup()
			return nil, fmt.Errorf("failed to connect to redis stream at %s: %w", cfg.RedisAddr, err)
		}
		deps.Publisher = redisPublisher
		logger.Info("Publishing search events to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	} else {
		deps.Publisher = publisher.Noop{}
	}

	// Initialize store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			deps.Cleanup()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			deps.Cleanup()
			return nil, err
		}
		deps.Store = pg
		logger.Info("Connected to PostgreSQL")
	} else {
		deps.Store = store.NewMemoryStore(200)
		logger.Info("DATABASE_URL not set, keeping searches in memory")
	}

	// Initialize exchange rates
	deps.Rates = rates.NewProvider(cfg.RatesURL, cfg.ReferenceCurrency, cfg.FallbackRates, cfg.RequestTimeout)
	if err := deps.Rates.Start(ctx, cfg.RatesRefresh); err != nil {
		deps.Cleanup()
		return nil, err
	}

	return deps, nil
}
