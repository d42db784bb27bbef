package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/api/events"
	"github.com/bidmatch/backend/internal/api/handlers"
	"github.com/bidmatch/backend/internal/cache/redis"
	"github.com/bidmatch/backend/internal/classifier"
	"github.com/bidmatch/backend/internal/embedding"
	"github.com/bidmatch/backend/internal/engine"
	"github.com/bidmatch/backend/internal/features"
	"github.com/bidmatch/backend/internal/learning"
	"github.com/bidmatch/backend/internal/llm"
	"github.com/bidmatch/backend/internal/memory"
	"github.com/bidmatch/backend/internal/metrics"
	"github.com/bidmatch/backend/internal/middleware/ratelimit"
	"github.com/bidmatch/backend/internal/middleware/security"
	"github.com/bidmatch/backend/internal/middleware/validation"
	"github.com/bidmatch/backend/internal/scoring"
	"github.com/bidmatch/backend/internal/storage/sqlite"
	"github.com/bidmatch/backend/internal/training"
	"github.com/bidmatch/backend/internal/vector/milvus"
	"github.com/bidmatch/backend/pkg/config"
	appLogger "github.com/bidmatch/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting BidMatch Compatibility Engine API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Engine.ResultCacheTTLSec)*time.Second,
			time.Duration(cfg.Engine.EmbeddingCacheTTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without caches", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var vectorIndex memory.VectorIndex
	if cfg.Milvus.Enabled {
		milvusIndex, err := milvus.NewIndex(
			cfg.Milvus.Endpoint,
			cfg.Milvus.CollectionName,
			cfg.Engine.EmbeddingDim,
		)
		if err != nil {
			appLogger.Warn("Milvus unavailable, memory bank will scan in-process", zap.Error(err))
		} else {
			defer milvusIndex.Close()
			if err := milvusIndex.EnsureCollection(context.Background()); err != nil {
				appLogger.Warn("Failed to ensure Milvus collection, memory bank will scan in-process", zap.Error(err))
			} else {
				vectorIndex = milvusIndex
			}
		}
	}

	var llmClient *llm.Client
	if cfg.LLM.APIKey != "" {
		llmClient = llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.EmbeddingModel,
			cfg.Engine.EmbeddingDim,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
			cfg.LLM.TimeoutSec,
		)
	} else {
		appLogger.Warn("No LLM API key configured, running on deterministic fallbacks only")
	}

	var embeddingBackend embedding.Backend
	var classifierBackend classifier.Backend
	var featureBackend features.Backend
	var insightBackend scoring.InsightBackend
	if llmClient != nil {
		embeddingBackend = llmClient
		classifierBackend = llmClient
		featureBackend = llmClient
		insightBackend = llmClient
	}

	var embeddingCache embedding.Cache
	if redisClient != nil {
		embeddingCache = redisClient
	}

	embedder := embedding.NewService(cfg.Engine.EmbeddingDim, embeddingBackend, embeddingCache)
	docClassifier := classifier.New(classifierBackend, cfg.Engine.ClassifierMaxChars)
	extractor := features.NewExtractor(featureBackend, embedder)
	bank := memory.NewBank(sqliteClient, embedder, vectorIndex)
	scorer := scoring.NewService(sqliteClient, insightBackend)
	loop := learning.NewLoop(sqliteClient)
	hub := events.NewHub()
	scheduler := training.NewScheduler(sqliteClient, cfg.Engine.TrainingMinEntries, cfg.Engine.TrainingNewEntries, hub)

	var resultCache engine.ResultCache
	if redisClient != nil {
		resultCache = redisClient
	}

	matchEngine := engine.New(docClassifier, extractor, bank, scorer, sqliteClient, resultCache, cfg.Engine.SimilarTopK)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	analyzeHandler := handlers.NewAnalyzeHandler(matchEngine)
	historicalHandler := handlers.NewHistoricalHandler(bank, extractor, scorer, scheduler)
	feedbackHandler := handlers.NewFeedbackHandler(loop)
	trainingHandler := handlers.NewTrainingHandler(sqliteClient, hub)

	api := app.Group("/api/v1")

	api.Post("/analyze", analyzeHandler.HandleAnalyze)
	api.Post("/historical-data", historicalHandler.HandleIngest)
	api.Post("/feedback", feedbackHandler.HandleFeedback)
	api.Get("/training-status", trainingHandler.HandleStatus)

	app.Use("/ws", handlers.UpgradeRequired)
	app.Get("/ws/training", trainingHandler.HandleEvents())

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
