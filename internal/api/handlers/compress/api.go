package compress

import (
	"encoding/json"
	"fmt"
	"net/http"

	"image-compressor/internal/core/form"
	"image-compressor/internal/core/session"
	"image-compressor/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PercentageRequest 設定壓縮百分比
type PercentageRequest struct {
	Value *int `json:"value" binding:"required"`
}

// DimensionsRequest 設定目標寬高，欄位為 null 時清除，未出現時保持不變
type DimensionsRequest struct {
	Width  OptionalInt `json:"width"`
	Height OptionalInt `json:"height"`
}

// OptionalInt 區分欄位未出現、null 與數值
type OptionalInt struct {
	Set   bool
	Value *int
}

// UnmarshalJSON 實作 json.Unmarshaler
func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}

	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("expected integer or null: %w", err)
	}
	o.Value = &v
	return nil
}

// session 取得路徑中的會話
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	if !common.IsUUID(id) {
		h.respondError(c, common.ErrSessionNotFound)
		return nil, false
	}

	s, err := h.sessions.Get(id)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

// respond 回傳會話快照與頁面渲染結果
func (h *Handler) respond(c *gin.Context, status int, s *session.Session, st form.State) {
	viewCfg := form.ViewConfigFromConfig(h.cfg, "/api/v1/sessions/"+s.ID+"/download")
	c.JSON(status, SessionResponse{
		ID:    s.ID,
		State: st,
		View:  form.Render(st, viewCfg, s.Alerts.Drain()),
	})
}

// CreateSession POST /sessions
func (h *Handler) CreateSession(c *gin.Context) {
	s, err := h.sessions.Mount()
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}

	common.LogInfo("建立會話",
		zap.String("session_id", s.ID),
		zap.String("client_ip", c.ClientIP()),
	)
	h.respond(c, http.StatusCreated, s, s.Controller.Snapshot())
}

// GetSession GET /sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, s, s.Controller.Snapshot())
}

// DeleteSession DELETE /sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Unmount(id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Upload POST /sessions/:id/upload
func (h *Handler) Upload(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	in, err := readUpload(c, "file")
	if err != nil {
		h.respondError(c, err)
		return
	}

	st, err := s.Controller.Upload(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s, st)
}

// SetPercentage PUT /sessions/:id/percentage
func (h *Handler) SetPercentage(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req PercentageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, common.ErrInvalidRequest.WithError(err))
		return
	}

	st, err := s.Controller.SetCompressionPercentage(c.Request.Context(), *req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s, st)
}

// SetDimensions PUT /sessions/:id/dimensions
func (h *Handler) SetDimensions(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req DimensionsRequest
	if err := common.DecodeJSONStrict(c.Request.Body, &req); err != nil {
		h.respondError(c, common.ErrInvalidRequest.WithError(err))
		return
	}

	st, err := s.Controller.ApplySettings(c.Request.Context(), form.Settings{
		Width:  form.DimensionField(req.Width),
		Height: form.DimensionField(req.Height),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s, st)
}

// Compress POST /sessions/:id/compress
func (h *Handler) Compress(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	st, err := s.Controller.Compress(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, s, st)
}

// Download GET /sessions/:id/download
func (h *Handler) Download(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	h.download(c, s)
}

// download 以固定檔名與媒體類型回傳壓縮結果
func (h *Handler) download(c *gin.Context, s *session.Session) {
	b, err := s.Controller.CompressedBlob(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", h.cfg.Form.DownloadFilename))
	c.Data(http.StatusOK, h.cfg.Form.DownloadMediaType, b.Data)
}
