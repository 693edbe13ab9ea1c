package api

import (
	"time"

	"github.com/apk-analysis/droidcarve-go/internal/api/handlers"
	"github.com/apk-analysis/droidcarve-go/internal/config"
	"github.com/apk-analysis/droidcarve-go/internal/metrics"
	"github.com/apk-analysis/droidcarve-go/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SetupRouter 组装 HTTP 路由；reports 和 m 可以为 nil
func SetupRouter(cfg *config.Config, logger *logrus.Logger, inspector handlers.Inspector, reports repository.ReportRepository, m *metrics.Metrics) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	if m != nil {
		r.Use(m.HTTPMiddleware())
		r.GET("/metrics/prometheus", m.Handler())
	}

	sessionHandler := handlers.NewSessionHandler(inspector, logger)

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	v1 := r.Group("/api")
	if cfg.Server.APIToken != "" {
		v1.Use(TokenAuthMiddleware(cfg.Server.APIToken))
	}
	{
		v1.GET("/stats", sessionHandler.GetStats)
		v1.GET("/classes", sessionHandler.FindClasses)
		v1.GET("/permissions", sessionHandler.GetPermissions)
		v1.GET("/manifest", sessionHandler.GetManifest)
		v1.GET("/signatures", sessionHandler.GetSignatures)
		v1.GET("/packer", sessionHandler.GetPacker)
		v1.POST("/rescan", sessionHandler.Rescan)

		v1.GET("/exclusions", sessionHandler.ListExclusions)
		v1.POST("/exclusions", sessionHandler.AddExclusion)
		v1.DELETE("/exclusions", sessionHandler.ClearExclusions)

		if reports != nil {
			reportHandler := handlers.NewReportHandler(reports, logger)
			v1.GET("/reports", reportHandler.ListReports)
			v1.GET("/reports/:sha1", reportHandler.GetReport)
		}
	}

	return r
}

// LoggerMiddleware 日志中间件
func LoggerMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		logger.WithFields(logrus.Fields{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"latency": time.Since(startTime).Milliseconds(),
		}).Info("HTTP Request")
	}
}

// CORSMiddleware CORS 中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
