package image

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // 支援 GIF
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // 支援 WebP
)

var (
	// ErrEmpty 沒有內容
	ErrEmpty = errors.New("image data is empty")
	// ErrTooLarge 超過大小上限
	ErrTooLarge = errors.New("image size exceeds maximum limit")
	// ErrNotImage 媒體類型不是圖片
	ErrNotImage = errors.New("file is not an image")
	// ErrUnsupported 無法解碼的圖片格式
	ErrUnsupported = errors.New("unsupported image format")
)

// Dimensions 像素尺寸
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String 以 WxH 表示
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Info 圖片檢查結果
type Info struct {
	MediaType  string
	Format     string
	Dimensions Dimensions
}

// Service 圖片檢查服務
type Service struct {
	maxSizeBytes int64
	maxPixels    int64
}

// NewService 創建新的圖片檢查服務，上限為 0 表示不限制
func NewService(maxSizeBytes, maxPixels int64) *Service {
	return &Service{
		maxSizeBytes: maxSizeBytes,
		maxPixels:    maxPixels,
	}
}

// MaxSizeBytes 大小上限
func (s *Service) MaxSizeBytes() int64 {
	return s.maxSizeBytes
}

// Inspect 檢查大小、媒體類型與像素數，並完整解碼圖片。
// 尺寸依 EXIF 方向校正後回報。
func (s *Service) Inspect(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	if s.maxSizeBytes > 0 && int64(len(data)) > s.maxSizeBytes {
		return nil, fmt.Errorf("%w of %d bytes", ErrTooLarge, s.maxSizeBytes)
	}

	mediaType := mimetype.Detect(data).String()
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, mediaType)
	}

	dims, format, err := DecodeDimensions(data)
	if err != nil {
		return nil, err
	}

	if !isSupportedFormat(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}

	// 解碼前先檢查像素數，標頭可能宣稱極大的尺寸
	if pixels := int64(dims.Width) * int64(dims.Height); s.maxPixels > 0 && pixels > s.maxPixels {
		return nil, fmt.Errorf("%w: %d pixels exceeds %d", ErrTooLarge, pixels, s.maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	bounds := img.Bounds()

	return &Info{
		MediaType:  mediaType,
		Format:     format,
		Dimensions: Dimensions{Width: bounds.Dx(), Height: bounds.Dy()},
	}, nil
}

// DecodeDimensions 只解碼圖片標頭取得像素尺寸
func DecodeDimensions(data []byte) (Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Dimensions{}, format, fmt.Errorf("%w: empty bitmap", ErrUnsupported)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// isSupportedFormat 檢查圖片格式是否支援
func isSupportedFormat(format string) bool {
	supportedFormats := map[string]bool{
		"jpeg": true,
		"png":  true,
		"gif":  true,
		"webp": true,
	}
	return supportedFormats[format]
}
