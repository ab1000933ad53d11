package analytics

import (
	"github.com/gin-gonic/gin"

	"ontology/internal/shared/middleware"
)

func SetupAnalyticsRoutes(rg *gin.RouterGroup, controller Controller) {
	org := rg.Group("/organizations/:orgId", middleware.OrgScope())
	analytics := org.Group("/analytics")
	{
		analytics.POST("/runs", controller.RunAnalytics)
		analytics.GET("/latest", controller.GetLatestAnalytics)
		analytics.GET("/runs/:runId", controller.GetRun)
	}
}
