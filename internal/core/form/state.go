package form

import (
	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/compressor"
	imgsvc "image-compressor/internal/core/image"
	"image-compressor/internal/infrastructure/config"
)

// Dimensions 像素尺寸
type Dimensions = imgsvc.Dimensions

// State 表單狀態快照，每次更新都以新快照整個替換
type State struct {
	Version uint64 `json:"version"`
	Epoch   uint64 `json:"epoch"`

	OriginalImage      *blob.Blob  `json:"-"`
	OriginalName       string      `json:"original_name,omitempty"`
	OriginalSize       int64       `json:"original_size,omitempty"`
	OriginalPreviewRef string      `json:"original_preview_ref,omitempty"`
	OriginalDimensions *Dimensions `json:"original_dimensions"`

	CompressionPercentage int  `json:"compression_percentage"`
	TargetWidth           *int `json:"target_width"`
	TargetHeight          *int `json:"target_height"`

	CompressedPreviewRef string              `json:"compressed_preview_ref"`
	CompressedDimensions *Dimensions         `json:"compressed_dimensions"`
	CompressedSizeKB     *float64            `json:"compressed_size_kb"`
	HasCompressedOnce    bool                `json:"has_compressed_once"`
	LastOptions          *compressor.Options `json:"last_options,omitempty"`

	originalKey   string
	compressedKey string
	uploadSeq     uint64
	compressSeq   uint64
}

// ImageLoaded 是否已有上傳成功的圖片
func (s State) ImageLoaded() bool {
	return s.OriginalImage != nil
}

// Options 控制器設定
type Options struct {
	DefaultPercentage   int
	DefaultMaxDimension int
	UseWebWorker        bool
	PlaceholderRef      string
	RefPrefix           string
	ResetOnUpload       bool
	MaxTargetDimension  int
}

// OptionsFromConfig 由應用設定取出控制器設定
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultPercentage:   cfg.Form.DefaultPercentage,
		DefaultMaxDimension: cfg.Compressor.DefaultMaxDimension,
		UseWebWorker:        cfg.Compressor.UseWebWorker,
		PlaceholderRef:      cfg.Form.PlaceholderURL,
		RefPrefix:           cfg.Form.BlobURLPrefix,
		ResetOnUpload:       cfg.Form.ResetOnUpload,
		MaxTargetDimension:  cfg.Form.MaxTargetDimension,
	}
}

// initialState 掛載時的狀態
func initialState(opts Options) State {
	return State{
		CompressionPercentage: opts.DefaultPercentage,
		CompressedPreviewRef:  opts.PlaceholderRef,
	}
}

// BuildOptions 由目前狀態推導壓縮參數，呼叫前須確認已有圖片
func BuildOptions(s State, defaultMaxDimension int, useWebWorker bool) compressor.Options {
	ratio := float64(s.CompressionPercentage) / 100

	opts := compressor.Options{
		MaxSizeMB:        s.OriginalImage.SizeMB() * ratio,
		UseWebWorker:     useWebWorker,
		InitialQuality:   ratio,
		MaxWidthOrHeight: defaultMaxDimension,
	}

	if s.TargetWidth != nil && s.TargetHeight != nil {
		opts.MaxWidthOrHeight = max(*s.TargetWidth, *s.TargetHeight)
	}
	if s.TargetWidth != nil {
		w := *s.TargetWidth
		opts.MaxWidth = &w
	}
	if s.TargetHeight != nil {
		h := *s.TargetHeight
		opts.MaxHeight = &h
	}

	return opts
}
