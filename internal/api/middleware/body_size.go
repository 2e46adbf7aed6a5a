package middleware

import (
	"fmt"
	"net/http"

	"image-compressor/internal/pkg/common"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BodySizeLimit 限制請求體大小的中間件
func BodySizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			common.LogWarn("Request body too large",
				zap.Int64("content_length", c.Request.ContentLength),
				zap.String("max_size", humanize.IBytes(uint64(maxSize))),
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
			)
			err := common.ErrInvalidImageSize.WithError(
				fmt.Errorf("request body of %s exceeds %s",
					humanize.IBytes(uint64(c.Request.ContentLength)),
					humanize.IBytes(uint64(maxSize))),
			)
			c.AbortWithStatusJSON(err.Status, err.Response(true))
			return
		}

		// 未宣告長度時由 MaxBytesReader 截斷
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}
