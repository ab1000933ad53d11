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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ontology/api/routes"
	"ontology/internal/notifications"
	"ontology/internal/pipeline"
	"ontology/internal/shared/config"
	"ontology/internal/shared/constants"
	"ontology/internal/shared/database"
	"ontology/internal/shared/middleware"
	"ontology/pkg/logger"
	"ontology/pkg/metrics"
	"ontology/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadWithOverlay()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	appLogger := logger.NewWithWriter(os.Stdout, cfg.LogLevel)
	logger.SetDefault(appLogger)

	ctx := context.Background()
	db, err := database.InitDB(ctx, cfg)
	if err != nil {
		appLogger.Error("failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	collector := metrics.NewCollector("ontology")

	var publisher pipeline.Publisher
	if cfg.Kafka.Enabled {
		kafkaCfg := notifications.DefaultKafkaProducerConfig()
		kafkaCfg.Brokers = cfg.Kafka.Brokers
		kafkaCfg.RunTopic = cfg.Kafka.RunTopic
		kafkaCfg.ClientID = cfg.Kafka.ClientID
		kafkaCfg.RetryMax = cfg.Kafka.RetryMax
		kafkaCfg.Timeout = cfg.Kafka.Timeout

		producer, err := notifications.NewKafkaRunEventProducer(kafkaCfg, collector, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize run event producer", slog.Any("error", err))
			appLogger.Info("Continuing without run events")
		} else {
			publisher = producer
			defer func() {
				if err := producer.Close(); err != nil {
					appLogger.Error("Error closing run event producer", slog.Any("error", err))
				}
			}()
			appLogger.Info("Run event producer initialized", slog.String("topic", cfg.Kafka.RunTopic))
		}
	}

	var limiter ratelimit.Checker
	switch {
	case !cfg.RateLimit.Enabled:
		appLogger.Info("Rate limiting disabled")
	case db.Redis == nil:
		appLogger.Warn("Rate limiting needs Redis; continuing without it")
	default:
		limiter = ratelimit.NewRateLimiter(db.Redis, &ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			WindowDuration:    cfg.RateLimit.WindowDuration,
			DefaultRequests:   cfg.RateLimit.DefaultRequests,
			HealthRequests:    cfg.RateLimit.HealthRequests,
			AnalyticsRequests: cfg.RateLimit.AnalyticsRequests,
			RunRequests:       cfg.RateLimit.RunRequests,
			WhitelistedIPs:    cfg.RateLimit.WhitelistedIPs,
			KeyPrefix:         constants.CACHE_KEY_RATE_LIMIT,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("run_requests", cfg.RateLimit.RunRequests),
		)
	}

	router := setupRouter(cfg, db, collector, publisher, limiter, appLogger)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.String("database", cfg.Database.Driver),
			slog.Bool("redis_cache", db.Redis != nil),
			slog.Bool("run_events", publisher != nil),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	// runs are detached from requests; give in-flight ones time to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(
	cfg *config.Config,
	db *database.DB,
	collector *metrics.Collector,
	publisher pipeline.Publisher,
	limiter ratelimit.Checker,
	appLogger *logger.Logger,
) *gin.Engine {
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(appLogger),
		gin.Recovery(),
		collector.GinMiddleware(),
	)

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if limiter != nil {
		engine.Use(ratelimit.Middleware(limiter, appLogger))
	}

	routes.NewRouter(cfg, db, collector, publisher).SetupRoutes(engine)
	return engine
}
