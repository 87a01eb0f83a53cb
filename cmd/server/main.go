package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engramdev/engram/internal/api"
	"github.com/engramdev/engram/internal/batch"
	"github.com/engramdev/engram/internal/cache"
	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/embedding"
	"github.com/engramdev/engram/internal/learning"
	"github.com/engramdev/engram/internal/memory"
	"github.com/engramdev/engram/internal/metrics"
	"github.com/engramdev/engram/internal/ranking"
	"github.com/engramdev/engram/internal/retrieval"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/temporal"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	memoryStore := store.NewMemoryStore(db)
	keywordStore := store.NewKeywordStore(db)
	factStore := store.NewFactStore(db)
	connectionStore := store.NewConnectionStore(db)
	feedbackStore := store.NewFeedbackStore(db)
	patternStore := store.NewPatternStore(db)
	embeddingStore := store.NewEmbeddingStore(db)

	// Embedding
	ollamaClient := embedding.NewOllamaClient(cfg.Embedding.OllamaBaseURL, cfg.Embedding.Model, cfg.Embedding.Dimension)
	index := embedding.NewIndex(embeddingStore, ollamaClient, logger)

	if err := ollamaClient.HealthCheck(); err != nil {
		logger.Warn("embedding service not available at startup, retrieval will degrade to keyword search", "error", err)
	}

	// Cache
	memCache, err := cache.New(cache.Config{
		RecentSize:          cfg.Cache.MaxSize,
		ImportantSize:       cfg.Cache.ImportantSize,
		ImportanceThreshold: 8,
		DefaultTTL:          cfg.CacheTTL(),
		EnableCleanup:       cfg.Cache.EnableCleanup,
		CleanupInterval:     cfg.CacheCleanupInterval(),
	}, logger)
	if err != nil {
		logger.Error("failed to create cache", "error", err)
		os.Exit(1)
	}
	defer memCache.Close()

	// Ranking, temporal, learning
	ranker := ranking.NewRanker(feedbackStore, logger)
	temporalMgr := temporal.NewManager(cfg.TemporalUpdateInterval())
	learner := learning.NewLearner(patternStore, logger)

	// Retrieval cascade
	orchestrator := retrieval.NewOrchestrator(
		memoryStore, keywordStore, index, ranker, learner, temporalMgr,
		retrieval.Options{
			MinScore:       cfg.Ranking.MinRelevanceScore,
			IncludeReasons: cfg.Ranking.IncludeReasons,
			RecencyBoost:   cfg.Ranking.RecencyBoost,
			FeedbackBoost:  cfg.Ranking.FeedbackBoost,
		},
		logger,
	)

	m := metrics.New()

	// Batch manager
	batcher := batch.NewManager(memoryStore, index, memCache, logger)

	// Memory service
	svc := memory.NewService(memory.Deps{
		Memories:     memoryStore,
		Facts:        factStore,
		Connections:  connectionStore,
		Feedback:     feedbackStore,
		Index:        index,
		Cache:        memCache,
		Ranker:       ranker,
		Learner:      learner,
		Batcher:      batcher,
		Orchestrator: orchestrator,
		Metrics:      m,
		BatchOpts: batch.Options{
			DefaultSource:      cfg.Batch.DefaultSource,
			DefaultContext:     cfg.Batch.DefaultContext,
			DefaultImportance:  cfg.Batch.DefaultImportance,
			GenerateEmbeddings: &cfg.Batch.GenerateEmbeddings,
		},
		CacheTTL: cfg.CacheTTL(),
		Logger:   logger,
	})

	// Router
	router := api.NewRouter(db, svc, ollamaClient, m, cfg.APIToken, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("engram server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
