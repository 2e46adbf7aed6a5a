package compress

import (
	"errors"
	"net/http"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// ServeBlob GET /blobs/:key 提供預覽用的顯示參照
func (h *Handler) ServeBlob(c *gin.Context) {
	b, err := h.store.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			h.respondError(c, common.ErrNotFound.WithError(err))
			return
		}
		h.respondError(c, common.ErrInternalError.WithError(err))
		return
	}

	mediaType := b.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	c.Header("Cache-Control", "private, max-age=3600")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, mediaType, b.Data)
}
