// Package compressor 定義壓縮函式的輸入輸出約定，並提供本地與遠端兩種實作。
package compressor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/infrastructure/config"
)

// Options 壓縮參數
type Options struct {
	MaxSizeMB        float64 `json:"maxSizeMB"`
	UseWebWorker     bool    `json:"useWebWorker"`
	InitialQuality   float64 `json:"initialQuality"`
	MaxWidthOrHeight int     `json:"maxWidthOrHeight"`
	MaxWidth         *int    `json:"maxWidth,omitempty"`
	MaxHeight        *int    `json:"maxHeight,omitempty"`
}

// Validate 檢查參數範圍
func (o Options) Validate() error {
	if o.MaxSizeMB <= 0 {
		return fmt.Errorf("maxSizeMB must be positive, got %v", o.MaxSizeMB)
	}
	if o.InitialQuality <= 0 || o.InitialQuality > 1 {
		return fmt.Errorf("initialQuality must be in (0, 1], got %v", o.InitialQuality)
	}
	if o.MaxWidthOrHeight <= 0 {
		return fmt.Errorf("maxWidthOrHeight must be positive, got %d", o.MaxWidthOrHeight)
	}
	if o.MaxWidth != nil && *o.MaxWidth <= 0 {
		return fmt.Errorf("maxWidth must be positive, got %d", *o.MaxWidth)
	}
	if o.MaxHeight != nil && *o.MaxHeight <= 0 {
		return fmt.Errorf("maxHeight must be positive, got %d", *o.MaxHeight)
	}
	return nil
}

// Compressor 壓縮函式，成功時回傳新的 blob
type Compressor interface {
	Compress(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error)
}

// Func 讓一般函式滿足 Compressor
type Func func(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error)

// Compress 實作 Compressor
func (f Func) Compress(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error) {
	return f(ctx, in, opts)
}

// New 依設定建立壓縮函式
func New(cfg *config.Config, q *queue.Manager) (Compressor, error) {
	switch cfg.Compressor.Driver {
	case "local":
		return NewLocal(q, cfg.Compressor.MaxIteration), nil
	case "remote":
		return NewRemote(cfg.Compressor.Remote), nil
	default:
		return nil, fmt.Errorf("unknown compressor driver: %s", cfg.Compressor.Driver)
	}
}

// outputName 將副檔名換成 .jpg
func outputName(name string) string {
	if name == "" {
		return "compressed.jpg"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}
