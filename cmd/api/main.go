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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/vidforensics/backend/internal/api/handlers"
	"github.com/vidforensics/backend/internal/authenticity"
	"github.com/vidforensics/backend/internal/cache/redis"
	"github.com/vidforensics/backend/internal/forensics"
	"github.com/vidforensics/backend/internal/llm"
	"github.com/vidforensics/backend/internal/metrics"
	"github.com/vidforensics/backend/internal/middleware/ratelimit"
	"github.com/vidforensics/backend/internal/middleware/security"
	"github.com/vidforensics/backend/internal/middleware/validation"
	"github.com/vidforensics/backend/internal/probe"
	"github.com/vidforensics/backend/internal/provenance"
	"github.com/vidforensics/backend/internal/search/web"
	"github.com/vidforensics/backend/internal/videoindex"
	"github.com/vidforensics/backend/pkg/circuitbreaker"
	"github.com/vidforensics/backend/pkg/config"
	appLogger "github.com/vidforensics/backend/pkg/logger"
	"github.com/vidforensics/backend/pkg/poll"
	"github.com/vidforensics/backend/pkg/retry"
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

	appLogger.Info("Starting video forensics API server")

	metrics.Init()

	reasoningBreaker := newBreaker("reasoning")
	searchBreaker := newBreaker("search")

	indexClient := videoindex.NewClient(videoindex.Config{
		APIKey:       cfg.TwelveLabs.APIKey,
		BaseURL:      cfg.TwelveLabs.BaseURL,
		Model:        cfg.TwelveLabs.Model,
		ModelOptions: cfg.TwelveLabs.ModelOptions,
		Temperature:  cfg.TwelveLabs.Temperature,
		Timeout:      seconds(cfg.TwelveLabs.TimeoutSec),
	})

	reasoner := llm.NewClient(llm.Config{
		APIKey:      cfg.Reasoning.APIKey,
		BaseURL:     cfg.Reasoning.BaseURL,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		Timeout:     seconds(cfg.Reasoning.TimeoutSec),
		Breaker:     reasoningBreaker,
	})

	searchClient := web.NewClient(web.Config{
		Provider:       cfg.Search.Provider,
		TavilyAPIKey:   cfg.Search.TavilyAPIKey,
		TavilyBaseURL:  cfg.Search.TavilyBaseURL,
		SerpAPIKey:     cfg.Search.SerpAPIKey,
		SerpAPIBaseURL: cfg.Search.SerpAPIBaseURL,
		Depth:          cfg.Search.Depth,
		MaxResults:     cfg.Search.MaxResults,
		ContentTrim:    cfg.Search.ContentTrimChars,
		ScrapeFallback: cfg.Search.ScrapeFallback,
		Timeout:        seconds(cfg.Search.TimeoutSec),
		Breaker:        searchBreaker,
	})

	mediaClient := llm.NewMediaClient(llm.MediaConfig{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.VideoModel,
		Timeout: seconds(cfg.Gemini.TimeoutSec),
	})

	ffprobe := probe.New(cfg.Tools.FFprobePath)
	c2pa := provenance.New(cfg.Tools.C2PAToolPath)
	if !ffprobe.Available() {
		appLogger.Warn("ffprobe not found, container metadata will be empty", zap.String("path", cfg.Tools.FFprobePath))
	}
	if !c2pa.Available() {
		appLogger.Warn("c2patool not found, provenance checks disabled", zap.String("path", cfg.Tools.C2PAToolPath))
	}

	pipeline := forensics.NewPipeline(indexClient, reasoner, searchClient, forensics.SettingsFromConfig(cfg.Pipeline))

	detector := authenticity.NewGenerationDetector(mediaClient, poll.Config{
		Interval:    cfg.Pipeline.FilePollInterval(),
		MaxWait:     cfg.Pipeline.PollMaxWait(),
		MaxAttempts: cfg.Pipeline.PollMaxAttempts,
		OnAttempt: func(job string, state poll.State) {
			metrics.PollAttempts.WithLabelValues(job, state.String()).Inc()
		},
		Logger: appLogger.GetLogger(),
	}, retry.Config{
		MaxAttempts:    cfg.Pipeline.UploadRetries,
		InitialDelay:   cfg.Pipeline.UploadRetryBase(),
		MaxDelay:       time.Minute,
		Multiplier:     2,
		JitterFraction: 0.1,
		OnRetry:        metrics.RecordRetry,
		Logger:         appLogger.GetLogger(),
	}, cfg.Pipeline.MetadataContextChars)
	trustAnalyzer := authenticity.NewAnalyzer(authenticity.NewProvenanceChecker(ffprobe, c2pa), detector)

	var limiter ratelimit.Store
	if cfg.RateLimit.Enabled {
		limiter = newRateLimitStore(cfg)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  seconds(cfg.Server.ReadTimeout),
		WriteTimeout: seconds(cfg.Server.WriteTimeout),
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Server.Development,
	}))

	analyzeHandler := handlers.NewAnalyzeHandler(pipeline, trustAnalyzer, cfg.Tools.TempDir)
	wsHandler := handlers.NewWebSocketHandler(pipeline, cfg.Tools.TempDir, int64(cfg.Server.BodyLimit))
	healthHandler := handlers.NewHealthHandler(handlers.HealthInfo{
		Services: map[string]bool{
			"twelvelabs": indexClient.Configured(),
			"gemini":     mediaClient.Configured(),
			"tavily":     cfg.Search.TavilyAPIKey != "",
			"openai":     cfg.Reasoning.Provider == "openai" && reasoner.Configured(),
			"serpapi":    cfg.Search.SerpAPIKey != "",
			"ffprobe":    ffprobe.Available(),
			"c2patool":   c2pa.Available(),
		},
		Models: map[string]string{
			"text":  reasoner.Model(),
			"video": mediaClient.Model(),
		},
	})

	upload := validation.UploadMiddleware(validation.Config{Logger: appLogger.GetLogger()})

	api := app.Group("/api")

	analyze := []fiber.Handler{upload}
	if limiter != nil {
		analyze = append([]fiber.Handler{ratelimit.Middleware(ratelimit.Config{
			Store:  limiter,
			Logger: appLogger.GetLogger(),
		})}, analyze...)
	}

	withUpload := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, analyze...), h)
	}

	api.Post("/analyze-factcheck", withUpload(analyzeHandler.AnalyzeFactCheck)...)
	api.Post("/analyze-ai", withUpload(analyzeHandler.AnalyzeAI)...)
	api.Get("/health", healthHandler.Health)
	api.Get("/ws/analyze", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	addr := cfg.Server.Addr()
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("rate_limit", ratelimit.Describe(limiter)),
		zap.String("search_provider", searchClient.Provider()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Shutdown did not complete cleanly", zap.Error(err))
	}
	if closer, ok := limiter.(interface{ Stop() }); ok {
		closer.Stop()
	}
	appLogger.Info("Server stopped")
}

func newBreaker(name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(name, circuitbreaker.Config{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OnStateChange:    metrics.BreakerStateChanged,
		Logger:           appLogger.GetLogger(),
	})
}

// newRateLimitStore falls back to the in-process bucket when redis is off or
// unreachable at boot.
func newRateLimitStore(cfg *config.Config) ratelimit.Store {
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client, err := redis.NewClient(ctx, cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err == nil {
			return ratelimit.NewRedisStore(client, cfg.RateLimit.RequestsPerMinute, time.Minute)
		}
		appLogger.Warn("Redis unavailable, using in-memory rate limiting", zap.Error(err))
	}
	return ratelimit.NewMemoryStore(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
