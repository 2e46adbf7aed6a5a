package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/core/session"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Sessions  *session.Stats         `json:"sessions,omitempty"`
	BlobStore *blob.Stats            `json:"blobstore,omitempty"`
}

// pinger 可檢查連線的儲存，例如 Redis
type pinger interface {
	Ping(ctx context.Context) error
}

// statser 可回報統計的儲存
type statser interface {
	Stats() blob.Stats
}

// Handler 健康檢查處理器
type Handler struct {
	cfg      *config.Config
	queue    *queue.Manager
	sessions *session.Manager
	store    blob.Store
}

// NewHandler 創建健康檢查處理器，queue 可為 nil
func NewHandler(cfg *config.Config, q *queue.Manager, sessions *session.Manager, store blob.Store) *Handler {
	return &Handler{
		cfg:      cfg,
		queue:    q,
		sessions: sessions,
		store:    store,
	}
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.cfg.App.Version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}

	if h.queue != nil {
		response.Queue = h.queue.Status()
	}
	if h.sessions != nil {
		st := h.sessions.Stats()
		response.Sessions = &st
	}
	if s, ok := h.store.(statser); ok {
		st := s.Stats()
		response.BlobStore = &st
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查：儲存可連線且隊列未滿
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if p, ok := h.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			common.LogWarn("Blob store not ready", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"reason": "blobstore unavailable",
			})
			return
		}
	}

	if h.queue != nil {
		if st := h.queue.Status(); st.MaxQueueSize > 0 && st.QueueLength >= st.MaxQueueSize {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"reason": "compression queue full",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
