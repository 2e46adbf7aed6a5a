// Package compress 提供壓縮表單的 JSON API 與頁面處理器。
package compress

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/form"
	"image-compressor/internal/core/session"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 壓縮表單處理器
type Handler struct {
	cfg      *config.Config
	sessions *session.Manager
	store    blob.Store
}

// NewHandler 創建處理器
func NewHandler(cfg *config.Config, sessions *session.Manager, store blob.Store) *Handler {
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
	}
}

// SessionResponse 會話狀態與頁面渲染結果
type SessionResponse struct {
	ID    string     `json:"id"`
	State form.State `json:"state"`
	View  form.View  `json:"view"`
}

// respondError 依 CustomError 寫入錯誤響應
func (h *Handler) respondError(c *gin.Context, err error) {
	ce := common.AsCustomError(err)

	fields := []zap.Field{
		zap.String("code", ce.Code),
		zap.Int("status", ce.Status),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestID(c)),
	}
	if ce.Err != nil {
		fields = append(fields, zap.Error(ce.Err))
	}
	if ce.Status >= 500 {
		common.LogError("請求處理失敗", fields...)
	} else {
		common.LogDebug("請求被拒絕", fields...)
	}

	c.Error(err)
	c.AbortWithStatusJSON(ce.Status, ce.Response(h.cfg.App.Debug))
}

// readUpload 讀取 multipart 檔案欄位
func readUpload(c *gin.Context, field string) (blob.Blob, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return blob.Blob{}, common.ErrInvalidImageSize.WithError(err)
		}
		return blob.Blob{}, common.ErrInvalidRequest.WithError(fmt.Errorf("missing %q file field: %w", field, err))
	}

	data, err := readFileHeader(fh)
	if err != nil {
		return blob.Blob{}, common.ErrInvalidRequest.WithError(err)
	}

	return blob.Blob{
		Name:      fh.Filename,
		MediaType: fh.Header.Get("Content-Type"),
		Data:      data,
	}, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

func requestID(c *gin.Context) string {
	if id := c.Writer.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}
