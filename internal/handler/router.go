package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/paperbrief/internal/middleware"
)

type RouterDeps struct {
	Ingest    *IngestHandler
	Query     *QueryHandler
	Admin     *AdminHandler
	JWTSecret []byte
	// Window between summarization calls per caller; zero disables.
	QueryRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	if len(deps.JWTSecret) > 0 {
		api.Use(middleware.OptionalJWTAuth(deps.JWTSecret))
	}

	api.POST("/papers/:id/sections", deps.Ingest.StoreSections)
	api.POST("/papers/bulk", deps.Ingest.StoreBulk)
	api.GET("/papers/:id/sections", deps.Ingest.ListSections)
	api.GET("/papers/:id/structure", deps.Ingest.Structure)
	api.DELETE("/papers/:id", deps.Ingest.DeletePaper)
	api.GET("/sections/:section_id", deps.Ingest.GetSection)
	api.PUT("/sections/:section_id/tokens", deps.Ingest.AttachTokens)

	queryGroup := api.Group("")
	queryGroup.Use(middleware.RateLimit(deps.QueryRateWindow))
	queryGroup.POST("/query", deps.Query.Summarize)
	queryGroup.POST("/query/brief", deps.Query.Brief)

	api.GET("/search/text", deps.Query.SearchText)
	api.GET("/stats", deps.Query.Stats)

	adminGroup := api.Group("/admin")
	if len(deps.JWTSecret) > 0 {
		adminGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	}
	adminGroup.POST("/backfill", deps.Admin.Backfill)
	adminGroup.POST("/index/sync", deps.Admin.SyncIndex)
	adminGroup.POST("/index/rebuild", deps.Admin.RebuildIndex)
	adminGroup.POST("/index/save", deps.Admin.SaveIndex)
	adminGroup.GET("/audit/report", deps.Admin.AuditReport)
}
