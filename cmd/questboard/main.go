package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onesmallpr/questboard/internal/analysis"
	"github.com/onesmallpr/questboard/internal/api"
	"github.com/onesmallpr/questboard/internal/catalog"
	"github.com/onesmallpr/questboard/internal/config"
	"github.com/onesmallpr/questboard/internal/generator"
	"github.com/onesmallpr/questboard/internal/github"
	"github.com/onesmallpr/questboard/internal/llm"
	"github.com/onesmallpr/questboard/internal/metrics"
	"github.com/onesmallpr/questboard/internal/seed"
	"github.com/onesmallpr/questboard/internal/services"
	"github.com/onesmallpr/questboard/internal/storage"
	"github.com/onesmallpr/questboard/internal/warmup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting questboard",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"source", cfg.Source.Kind,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	registry := services.NewRegistry()
	m := metrics.New()
	hub := api.NewHub()
	hub.OnClientsChanged(m.StreamClients)

	// Upstream issue source
	var source catalog.Source
	switch cfg.Source.Kind {
	case "file":
		s := seed.NewSource(cfg.Source.Dir)
		registry.Register("seed", s)
		source = s
	default:
		gh := github.NewClient(cfg.GitHub.BaseURL, github.SearchOptions{
			Query:   cfg.GitHub.Query,
			Sort:    cfg.GitHub.Sort,
			PerPage: cfg.GitHub.PerPage,
		}, github.WithToken(cfg.GitHub.Token))
		registry.Register("github", gh)
		source = gh
	}

	// Chat-completion client; without a key every caller uses its fallback
	var completer llm.Completer = llm.Unavailable{}
	client, err := llm.NewClient(llm.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		slog.Warn("no llm api key configured, analysis and generation will use fallbacks")
	case err != nil:
		slog.Error("failed to create llm client", "error", err)
		os.Exit(1)
	default:
		slog.Info("llm client ready", "model", client.Model())
		completer = client
	}

	catalogOpts := []catalog.Option{
		catalog.WithRecorder(m),
		catalog.OnCommit(m.CatalogCommitted),
		catalog.OnCommit(hub.CatalogCommitted),
	}
	serverOpts := []api.Option{
		api.WithRegistry(registry),
		api.WithMetrics(m),
		api.WithHub(hub),
	}

	// Snapshot persistence (optional)
	var repo *storage.PostgresRepository
	if cfg.Database.DSN != "" {
		repo, err = storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			slog.Error("failed to create database repository", "error", err)
			os.Exit(1)
		}

		slog.Info("running database migrations")
		if err := storage.RunMigrations(initCtx, repo.Pool()); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected successfully")

		registry.Register("postgres", repo)
		catalogOpts = append(catalogOpts, catalog.WithStore(repo))
		serverOpts = append(serverOpts, api.WithSnapshots(repo))
	}

	// Generation cache (optional)
	generatorOpts := []generator.Option{generator.WithRecorder(m)}
	var cache *services.RedisCache
	if cfg.Redis.Address != "" {
		cache, err = services.NewRedisCache(initCtx, services.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		registry.Register("redis", cache)
		generatorOpts = append(generatorOpts, generator.WithCache(cache))
		serverOpts = append(serverOpts, api.WithCachePurger(cache))
	}

	quests := catalog.New(source, analysis.NewAnalyzer(completer), cfg.Catalog, catalogOpts...)
	if repo != nil {
		if err := quests.Restore(initCtx); err != nil {
			slog.Warn("failed to restore catalog snapshot", "error", err)
		}
	}

	gen := generator.New(completer, generator.Config{
		DefaultSkillLevel: cfg.Generator.DefaultSkillLevel,
		Timeout:           cfg.LLM.Timeout,
		CacheTTL:          cfg.Generator.CacheTTL,
	}, generatorOpts...)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start catalog warmer
	if cfg.Catalog.WarmInterval > 0 {
		warmup.NewWarmer(quests, cfg.Catalog.WarmInterval).Start(ctx)
	}

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Admin, quests, gen, serverOpts...)
	httpServer := &http.Server{
		Addr:        cfg.Server.Addr(),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Let an in-flight background refresh commit before closing its store
	quests.Wait()

	if cache != nil {
		if err := cache.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	if client != nil {
		in, out, calls := client.Usage().Totals()
		slog.Info("llm usage", "calls", calls, "input_tokens", in, "output_tokens", out)
	}

	slog.Info("questboard stopped")
}
