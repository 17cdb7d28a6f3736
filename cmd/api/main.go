package main

import (
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

	"github.com/qaforge/backend/internal/api/handlers"
	"github.com/qaforge/backend/internal/dedup"
	"github.com/qaforge/backend/internal/llm"
	"github.com/qaforge/backend/internal/metrics"
	"github.com/qaforge/backend/internal/middleware/ratelimit"
	"github.com/qaforge/backend/internal/middleware/security"
	"github.com/qaforge/backend/internal/middleware/validation"
	"github.com/qaforge/backend/internal/pipeline"
	"github.com/qaforge/backend/internal/scrape"
	"github.com/qaforge/backend/internal/storage/sqlite"
	"github.com/qaforge/backend/pkg/config"
	appLogger "github.com/qaforge/backend/pkg/logger"
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

	appLogger.Info("Starting QAForge API server")

	metrics.Init()

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache scrape.Cache
	if cfg.Redis.Enabled {
		redisCache, err := scrape.NewRedisCache(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Fatal("Failed to create redis cache", zap.Error(err))
		}
		defer redisCache.Close()
		cache = redisCache
	} else {
		appLogger.Info("Redis disabled, using in-process scrape cache")
		cache = scrape.NewMemoryCache()
	}

	fetcher := scrape.NewFetcher(scrape.Config{
		MaxAttempts:   cfg.Scraper.MaxRetries,
		BackoffFactor: cfg.Scraper.BackoffFactor,
		Timeout:       time.Duration(cfg.Scraper.TimeoutSec) * time.Second,
		Delay:         time.Duration(cfg.Scraper.DelayMS) * time.Millisecond,
		UserAgents:    cfg.Scraper.UserAgents,
	}, cache)

	llmClient := llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Temperature:      cfg.LLM.Temperature,
		MaxTokensClean:   cfg.LLM.MaxTokensClean,
		MaxTokensQA:      cfg.LLM.MaxTokensQA,
		Timeout:          time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		MaxCleaningInput: cfg.LLM.MaxCleaningInput,
	})

	engine := dedup.NewEngine(db, cfg.Dedup.ContextThreshold)
	pipe := pipeline.New(fetcher, llmClient, engine, db, cfg.Dedup.SimilarityThreshold)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	generateHandler := handlers.NewGenerateHandler(pipe)
	collectionHandler := handlers.NewCollectionHandler(db, engine, cfg.Dedup.SimilarityThreshold)

	api := app.Group("/api/v1")

	api.Post("/generate", generateHandler.Generate)

	api.Post("/collections", collectionHandler.Create)
	api.Get("/collections", collectionHandler.List)
	api.Delete("/collections/:id", collectionHandler.Delete)
	api.Get("/collections/:id/similarities", collectionHandler.AnalyzeSimilarities)
	api.Post("/collections/:id/clean-similarities", collectionHandler.CleanSimilarities)
	api.Get("/collections/:id/export", collectionHandler.Export)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.Handler())

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
