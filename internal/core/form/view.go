package form

import (
	"fmt"
	"strconv"

	"image-compressor/internal/infrastructure/config"

	"github.com/dustin/go-humanize"
)

// ViewConfig 渲染所需的固定設定
type ViewConfig struct {
	PlaceholderRef    string
	DownloadURL       string
	DownloadFilename  string
	DownloadMediaType string
}

// ViewConfigFromConfig 由應用設定取出渲染設定，downloadURL 依呼叫端路由而定
func ViewConfigFromConfig(cfg *config.Config, downloadURL string) ViewConfig {
	return ViewConfig{
		PlaceholderRef:    cfg.Form.PlaceholderURL,
		DownloadURL:       downloadURL,
		DownloadFilename:  cfg.Form.DownloadFilename,
		DownloadMediaType: cfg.Form.DownloadMediaType,
	}
}

// UploadCard 上傳區塊
type UploadCard struct {
	PreviewRef        string `json:"preview_ref"`
	HasImage          bool   `json:"has_image"`
	FileName          string `json:"file_name,omitempty"`
	DimensionsCaption string `json:"dimensions_caption,omitempty"`
	SizeCaption       string `json:"size_caption,omitempty"`
}

// Controls 參數面板
type Controls struct {
	Percentage      int    `json:"percentage"`
	PercentageLabel string `json:"percentage_label"`
	Width           string `json:"width"`
	Height          string `json:"height"`
}

// ResultCard 結果區塊
type ResultCard struct {
	PreviewRef        string `json:"preview_ref"`
	ShowResult        bool   `json:"show_result"`
	DimensionsCaption string `json:"dimensions_caption,omitempty"`
	SizeCaption       string `json:"size_caption,omitempty"`
	DownloadURL       string `json:"download_url,omitempty"`
	DownloadFilename  string `json:"download_filename,omitempty"`
	DownloadMediaType string `json:"download_media_type,omitempty"`
}

// View 頁面渲染結果
type View struct {
	Upload             UploadCard     `json:"upload"`
	Controls           Controls       `json:"controls"`
	ShowCompressButton bool           `json:"show_compress_button"`
	Result             ResultCard     `json:"result"`
	Notifications      []Notification `json:"notifications"`
}

// Render 將狀態對應到頁面的五個區塊
func Render(s State, cfg ViewConfig, alerts []Notification) View {
	v := View{
		Upload: UploadCard{
			PreviewRef: cfg.PlaceholderRef,
			HasImage:   s.ImageLoaded(),
		},
		Controls: Controls{
			Percentage:      s.CompressionPercentage,
			PercentageLabel: fmt.Sprintf("%d%%", s.CompressionPercentage),
			Width:           optionalInt(s.TargetWidth),
			Height:          optionalInt(s.TargetHeight),
		},
		ShowCompressButton: s.ImageLoaded(),
		Result: ResultCard{
			PreviewRef: s.CompressedPreviewRef,
			ShowResult: s.HasCompressedOnce,
		},
		Notifications: alerts,
	}

	if v.Notifications == nil {
		v.Notifications = []Notification{}
	}

	if s.ImageLoaded() {
		v.Upload.PreviewRef = s.OriginalPreviewRef
		v.Upload.FileName = s.OriginalName
		v.Upload.SizeCaption = "Original Size: " + humanize.IBytes(uint64(s.OriginalSize))
	}
	if s.OriginalDimensions != nil {
		v.Upload.DimensionsCaption = "Original Dimensions: " + s.OriginalDimensions.String()
	}

	if v.Result.PreviewRef == "" {
		v.Result.PreviewRef = cfg.PlaceholderRef
	}
	if s.HasCompressedOnce {
		v.Result.DownloadURL = cfg.DownloadURL
		v.Result.DownloadFilename = cfg.DownloadFilename
		v.Result.DownloadMediaType = cfg.DownloadMediaType
		if s.CompressedDimensions != nil {
			v.Result.DimensionsCaption = "Compressed Dimensions: " + s.CompressedDimensions.String()
		}
		if s.CompressedSizeKB != nil {
			v.Result.SizeCaption = fmt.Sprintf("Compressed Size: %.2f KB", *s.CompressedSizeKB)
		}
	}

	return v
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
