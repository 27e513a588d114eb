package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"pos-edge/internal/mw"
	"pos-edge/internal/ticket"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(mw.Recovery(), mw.RequestLogger())

	handler := NewHandler(d)
	srv := handler.Config.Server

	rateLimiter := mw.RateLimiter(rate.Limit(srv.RateLimitPerSec), srv.RateLimitBurst)

	discoverTTL := time.Duration(srv.DiscoveryCacheSeconds) * time.Second
	caching := mw.Cache(cache.New(discoverTTL, 2*discoverTTL+time.Minute), discoverTTL)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)
		api.POST("/pair/claim", handler.PostPairClaim)

		api.GET("/printers", handler.GetPrinters)
		api.POST("/printers", handler.PostPrinter)
		api.DELETE("/printers/:id", handler.DeletePrinter)
		api.GET("/printers/discover", caching, handler.GetDiscover)

		api.POST("/print/test", handler.PostPrintTest(ticket.DialectEscPos))
		api.POST("/print/test-pcl", handler.PostPrintTest(ticket.DialectPCL))
		api.POST("/print/test-text", handler.PostPrintTest(ticket.DialectText))

		jobs := api.Group("/print/jobs", handler.requireQueue)
		jobs.POST("", handler.PostJob)
		jobs.GET("", handler.GetJobs)
		jobs.GET("/:id", handler.GetJob)
		jobs.POST("/:id/cancel", handler.PostCancelJob)

		api.GET("/events", handler.GetEvents)
		api.POST("/events", handler.PostEvents)
		api.POST("/sync/push", handler.PostSyncPush)

		api.POST("/config/cloud", handler.PostConfigCloud)
		api.POST("/config/reset", handler.PostConfigReset)
	}

	return r
}
