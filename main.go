package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harmonic-signals/config"
	"harmonic-signals/internal/api"
	"harmonic-signals/internal/auth"
	"harmonic-signals/internal/binance"
	"harmonic-signals/internal/cache"
	"harmonic-signals/internal/database"
	"harmonic-signals/internal/events"
	"harmonic-signals/internal/logging"
	"harmonic-signals/internal/scanner"
	"harmonic-signals/internal/strategy"
	"harmonic-signals/internal/vault"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "sample-config" {
		filename := "config.sample.json"
		if len(os.Args) > 2 {
			filename = os.Args[2]
		}
		if err := config.GenerateSampleConfig(filename); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		log.Printf("Sample configuration written to %s", filename)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized", "level", cfg.LoggingConfig.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets from Vault override file and environment values
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal("Failed to create vault client", "error", err.Error())
		}
		if err := vaultClient.Health(ctx); err != nil {
			logger.Fatal("Vault is not available", "error", err.Error())
		}
		secrets, err := vaultClient.GetSecrets(ctx)
		if err != nil {
			logger.Fatal("Failed to read secrets from vault", "error", err.Error())
		}
		secrets.Apply(cfg)
		logger.Info("Secrets loaded from vault", "path", cfg.VaultConfig.SecretPath)
	}

	// Initialize database (optional)
	var (
		repo    *database.Repository
		store   scanner.Store
		journal api.SignalJournal
	)
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err.Error())
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "error", err.Error())
		}

		repo = database.NewRepository(db)
		store = repo
		journal = repo
		logger.Info("Database initialized", "host", cfg.DatabaseConfig.Host, "database", cfg.DatabaseConfig.Database)
	} else {
		logger.Warn("Database disabled: signals are not journaled and trade state is not persisted")
	}

	// Initialize result cache (optional)
	var (
		resultCache  scanner.ResultCache
		resultReader api.ResultReader
	)
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Fatal("Failed to create cache service", "error", err.Error())
		}
		defer cacheService.Close()

		rc := cache.NewResultCache(cacheService, 2*cfg.EngineConfig.PollInterval)
		resultCache = rc
		resultReader = rc
		logger.Info("Result cache initialized", "address", cfg.RedisConfig.Address, "healthy", cacheService.IsHealthy())
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventError, func(event events.Event) {
		logging.WithComponent("events").Warn("Error event", "source", event.Data["source"], "message", event.Data["message"])
	})
	logger.Info("Event bus initialized")

	// Initialize market data client
	client := binance.NewClient(binance.ClientConfig{
		BaseURL:        cfg.FeedConfig.BaseURL,
		RequestsPerSec: cfg.FeedConfig.RequestsPerSec,
		Timeout:        time.Duration(cfg.FeedConfig.TimeoutSecs) * time.Second,
		MaxRetries:     cfg.FeedConfig.MaxRetries,
	})

	// Initialize scanner with one strategy per watched stream
	strategyConfig := strategy.ConfigFromSettings(cfg.HarmonicConfig)
	harmonicScanner := scanner.NewScanner(client, store, resultCache, eventBus, scanner.Config{
		Enabled:      cfg.EngineConfig.Enabled,
		PollInterval: cfg.EngineConfig.PollInterval,
		KlineLimit:   cfg.FeedConfig.KlineLimit,
		WorkerCount:  cfg.EngineConfig.WorkerCount,
		Strategy:     strategyConfig,
	})

	for _, entry := range cfg.EngineConfig.Watchlist {
		symbol, interval, err := config.ParseStream(entry)
		if err != nil {
			logger.Warn("Skipping watchlist entry", "entry", entry, "error", err.Error())
			continue
		}
		if _, err := harmonicScanner.AddStream(symbol, interval); err != nil {
			logger.Warn("Failed to add stream", "entry", entry, "error", err.Error())
		}
	}

	// Initialize authentication (optional)
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.Issuer, auth.DefaultTokenDuration)
		logger.Info("JWT authentication enabled", "issuer", cfg.AuthConfig.Issuer)
	}

	// Initialize web server
	server := api.NewServer(api.ServerConfig{
		Port:            cfg.ServerConfig.Port,
		Host:            cfg.ServerConfig.Host,
		AllowedOrigins:  cfg.ServerConfig.Origins(),
		ProductionMode:  cfg.ServerConfig.ProductionMode,
		ReadTimeout:     time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		RateLimit:       cfg.ServerConfig.RateLimit,
		AnalyzeDefaults: strategyConfig,
	}, harmonicScanner, journal, resultReader, eventBus, jwtManager)

	// Start web server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start web server", "error", err.Error())
		}
	}()

	// Start polling
	harmonicScanner.Start(ctx)
	logger.Info("Harmonic signals started",
		"streams", len(harmonicScanner.Streams()),
		"poll_interval", cfg.EngineConfig.PollInterval.String(),
		"port", cfg.ServerConfig.Port)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err.Error())
	}

	harmonicScanner.Stop()
	cancel()

	logger.Info("Shutdown complete")
}
