package compress

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"image-compressor/internal/core/form"
	"image-compressor/internal/core/session"
	"image-compressor/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Templates 頁面模板，供 gin.Engine.SetHTMLTemplate 使用
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFiles, "templates/*.html"))
}

// PageData 頁面模板資料
type PageData struct {
	Title string
	View  form.View
}

// pageSession 取得 cookie 綁定的會話，不存在或已過期時掛載新的
func (h *Handler) pageSession(c *gin.Context) (*session.Session, error) {
	name := h.cfg.Session.CookieName
	if id, err := c.Cookie(name); err == nil && common.IsUUID(id) {
		if s, err := h.sessions.Get(id); err == nil {
			return s, nil
		}
	}

	s, err := h.sessions.Mount()
	if err != nil {
		return nil, err
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, s.ID, int(h.cfg.Session.TTL/time.Second), "/", "", false, true)
	return s, nil
}

// Index GET /
func (h *Handler) Index(c *gin.Context) {
	s, err := h.pageSession(c)
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}

	viewCfg := form.ViewConfigFromConfig(h.cfg, "/download")
	c.HTML(http.StatusOK, "index.html", PageData{
		Title: h.cfg.App.Name,
		View:  form.Render(s.Controller.Snapshot(), viewCfg, s.Alerts.Drain()),
	})
}

// UploadPage POST /upload
func (h *Handler) UploadPage(c *gin.Context) {
	s, err := h.pageSession(c)
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}

	in, err := readUpload(c, "file")
	if err == nil {
		_, err = s.Controller.Upload(c.Request.Context(), in)
	}
	h.redirect(c, s, err)
}

// SettingsPage POST /settings
func (h *Handler) SettingsPage(c *gin.Context) {
	s, err := h.pageSession(c)
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}

	err = h.applySettings(c, s)
	if err == nil {
		common.LogDebug("Settings updated",
			zap.String("session_id", s.ID),
			zap.Int("percentage", s.Controller.Snapshot().CompressionPercentage),
		)
	}
	h.redirect(c, s, err)
}

// applySettings 解析表單中出現的欄位後一次套用，空白的寬高代表清除
func (h *Handler) applySettings(c *gin.Context, s *session.Session) error {
	var in form.Settings

	if raw, ok := c.GetPostForm("percentage"); ok {
		p, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return common.ErrInvalidPercentage.WithError(err)
		}
		in.Percentage = &p
	}

	for _, field := range []struct {
		name string
		dst  *form.DimensionField
	}{
		{"width", &in.Width},
		{"height", &in.Height},
	} {
		raw, ok := c.GetPostForm(field.name)
		if !ok {
			continue
		}
		v, err := parseDimension(raw)
		if err != nil {
			return err
		}
		*field.dst = form.DimensionField{Set: true, Value: v}
	}

	_, err := s.Controller.ApplySettings(c.Request.Context(), in)
	return err
}

func parseDimension(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, common.ErrInvalidDimension.WithError(err)
	}
	return &v, nil
}

// CompressPage POST /compress
func (h *Handler) CompressPage(c *gin.Context) {
	s, err := h.pageSession(c)
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}

	_, err = s.Controller.Compress(c.Request.Context())
	h.redirect(c, s, err)
}

// DownloadPage GET /download
func (h *Handler) DownloadPage(c *gin.Context) {
	s, err := h.pageSession(c)
	if err != nil {
		h.respondError(c, common.ErrServiceUnavailable.WithError(err))
		return
	}
	h.download(c, s)
}

// redirect 表單送出後導回頁面，未被控制器通知過的錯誤改以通知顯示
func (h *Handler) redirect(c *gin.Context, s *session.Session, err error) {
	if err != nil && !notified(err) {
		ce := common.AsCustomError(err)
		if ce.Status >= 500 {
			common.LogError("頁面操作失敗", zap.Error(err), zap.String("session_id", s.ID))
		}
		s.Alerts.Notify(form.Notification{
			Kind:    form.Kind(strings.ToLower(ce.Code)),
			Message: ce.Message,
			At:      time.Now(),
		})
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// notified 控制器已自行通知使用者的錯誤
func notified(err error) bool {
	return errors.Is(err, common.ErrNoImage) ||
		errors.Is(err, common.ErrCompressionFailed) ||
		errors.Is(err, common.ErrQueueFull) ||
		errors.Is(err, common.ErrStorageFull) ||
		errors.Is(err, common.ErrInvalidImageFormat) ||
		(errors.Is(err, common.ErrInvalidImageSize) && !isRequestTooLarge(err))
}

// isRequestTooLarge 請求體在到達控制器前就超過上限
func isRequestTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
