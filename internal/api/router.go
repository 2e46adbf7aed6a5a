package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"image-compressor/internal/api/handlers/compress"
	"image-compressor/internal/api/handlers/health"
	"image-compressor/internal/api/middleware"
	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/core/session"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由需要的服務
type Dependencies struct {
	Store    blob.Store
	Queue    *queue.Manager
	Sessions *session.Manager
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if deps.Store == nil || deps.Sessions == nil {
		return nil, errors.New("router requires blob store and session manager")
	}

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.SetHTMLTemplate(compress.Templates())

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	router.Use(requestTimeout(cfg.Server.RequestTimeout))

	healthHandler := health.NewHandler(cfg, deps.Queue, deps.Sessions, deps.Store)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	h := compress.NewHandler(cfg, deps.Sessions, deps.Store)
	dedup := middleware.NewDeduplicator(cfg.DedupWindow)

	// 頁面路由
	router.GET("/", h.Index)
	router.POST("/upload", h.UploadPage)
	router.POST("/settings", h.SettingsPage)
	router.POST("/compress", h.CompressPage)
	router.GET("/download", h.DownloadPage)

	// API 路由組
	api := router.Group("/api/v1")
	{
		api.GET("/blobs/:key", h.ServeBlob)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.POST("/:id/upload", dedup.Middleware(), h.Upload)
			sessions.PUT("/:id/percentage", h.SetPercentage)
			sessions.PUT("/:id/dimensions", h.SetDimensions)
			sessions.POST("/:id/compress", h.Compress)
			sessions.GET("/:id/download", h.Download)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.String("compressor_driver", cfg.Compressor.Driver),
		zap.String("blobstore_driver", cfg.BlobStore.Driver),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
	)

	return router, nil
}

// requestTimeout 為每個請求設定逾時，逾時後尚未寫出響應時回傳 504
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeout),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
				"code":    "REQUEST_TIMEOUT",
				"message": "Request timeout",
				"details": timeout.String(),
			})
		}
	}
}
