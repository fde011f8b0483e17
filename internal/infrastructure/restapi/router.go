package restapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// RouterOptions toggles the optional routes.
type RouterOptions struct {
	SwaggerEnabled bool
	SwaggerPath    string // local path of swagger.yaml
}

// SetupRouter wires the handlers into a gin engine under /api/v1 together
// with the metrics and swagger endpoints.
func SetupRouter(h *Handlers, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))
	router.Use(ZapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/portfolio", h.GetPortfolio)
		v1.POST("/portfolio/sync", h.SyncPortfolio)
		v1.GET("/portfolio/failed", h.GetFailedAccounts)
		v1.GET("/portfolio/accounts/:accountId/balance", h.GetAccountBalance)
		v1.GET("/portfolio/accounts/:accountId/assets", h.GetAccountAssets)

		v1.GET("/opportunities", h.GetOpportunities)
		v1.POST("/opportunities/refresh", h.RefreshOpportunities)
		v1.GET("/opportunities/accounts/:accountId", h.GetAccountOpportunities)

		v1.GET("/foxeth/tracker", h.GetTrackerState)
		v1.PUT("/foxeth/tracker/accounts", h.SetTrackerAccounts)
		v1.POST("/foxeth/tracker/tx", h.TrackTx)
		v1.POST("/foxeth/claims/estimate", h.EstimateClaim)
		v1.POST("/foxeth/claims", h.ConfirmClaim)

		v1.GET("/fiat-ramps/onramper/assets", h.GetFiatRampAssets)
		v1.POST("/fiat-ramps/onramper/url", h.CreateFiatRampURL)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if opts.SwaggerEnabled {
		router.StaticFile("/docs/swagger.yaml", opts.SwaggerPath)
		swaggerURL := ginSwagger.URL("/docs/swagger.yaml")
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, swaggerURL))
	}

	return router
}

// ZapLoggerMiddleware logs every request with its status and latency.
func ZapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	l := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			l.Error(c.Errors.String(), fields...)
			return
		}
		l.Info("Request handled", fields...)
	}
}
