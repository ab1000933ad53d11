// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ontology/internal/analytics"
	"ontology/internal/pipeline"
	"ontology/internal/shared/config"
	"ontology/internal/shared/constants"
	"ontology/internal/shared/database"
	"ontology/pkg/cache"
	"ontology/pkg/logger"
	"ontology/pkg/metrics"
)

const serviceName = "ontology-analytics"

// Router holds all route dependencies
type Router struct {
	config    *config.Config
	db        *database.DB
	metrics   *metrics.Collector
	publisher pipeline.Publisher
	logger    *logger.Logger
}

// NewRouter creates a new router instance. publisher may be nil.
func NewRouter(cfg *config.Config, db *database.DB, collector *metrics.Collector, publisher pipeline.Publisher) *Router {
	return &Router{
		config:    cfg,
		db:        db,
		metrics:   collector,
		publisher: publisher,
		logger:    logger.GetDefault(),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupAnalyticsRoutes(api)
	}
}

func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   serviceName,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   serviceName,
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "operational",
			"api_version":     r.config.APIVersion,
			"database_driver": r.config.Database.Driver,
			"redis_cache":     r.db.Redis != nil,
			"run_events":      r.publisher != nil,
			"timestamp":       time.Now(),
		})
	})

	if r.metrics != nil {
		engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))
	}
}

// setupAnalyticsRoutes wires the orchestrator with whichever of cache,
// metrics and publisher are configured.
func (r *Router) setupAnalyticsRoutes(rg *gin.RouterGroup) {
	opts := []pipeline.Option{pipeline.WithLogger(r.logger)}

	var cacheService cache.Service
	var locker analytics.RunLocker = analytics.NewLocalRunLock()
	if r.db.Redis != nil {
		cacheService = cache.NewService(r.db.Redis)
		opts = append(opts, pipeline.WithCache(cacheService))
		locker = analytics.NewRedisRunLock(r.db.Redis, constants.TTL_ANALYTICS_RUN_LOCK)
	}
	var cacheRecorder analytics.CacheRecorder
	if r.metrics != nil {
		cacheRecorder = r.metrics
		opts = append(opts, pipeline.WithMetrics(r.metrics))
	}
	if r.publisher != nil {
		opts = append(opts, pipeline.WithPublisher(r.publisher))
	}

	orchestrator := pipeline.NewOrchestrator(
		pipeline.NewRepositories(r.db.SQL),
		pipeline.ConfigFrom(r.config.Analytics),
		opts...,
	)
	analyticsService := analytics.NewService(orchestrator, locker, cacheService, cacheRecorder, r.logger)
	analyticsController := analytics.NewController(analyticsService)

	analytics.SetupAnalyticsRoutes(rg, analyticsController)
}
