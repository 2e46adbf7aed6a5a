package compressor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Remote 將壓縮交給外部 HTTP 服務
type Remote struct {
	client *resty.Client
}

// NewRemote 創建遠端壓縮函式
func NewRemote(cfg config.RemoteConfig) *Remote {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "image-compressor")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Remote{client: client}
}

// remoteError 遠端錯誤回應
type remoteError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Compress 實作 Compressor，以 multipart 上傳檔案與參數
func (r *Remote) Compress(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error) {
	if err := opts.Validate(); err != nil {
		return blob.Blob{}, fmt.Errorf("invalid options: %w", err)
	}

	name := in.Name
	if name == "" {
		name = "upload"
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(in.Data)).
		SetFormData(formFields(opts)).
		Post("/compress")
	if err != nil {
		return blob.Blob{}, fmt.Errorf("failed to send request to compressor: %w", err)
	}

	if resp.IsError() {
		msg := resp.String()
		var re remoteError
		if common.ParseJSONBytes(resp.Body(), &re) == nil {
			if re.Message != "" {
				msg = re.Message
			} else if re.Error != "" {
				msg = re.Error
			}
		}
		common.LogError("Remote compressor returned error status",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("response", msg),
		)
		return blob.Blob{}, fmt.Errorf("compressor error (status %d): %s", resp.StatusCode(), msg)
	}

	data := resp.Body()
	if len(data) == 0 {
		return blob.Blob{}, fmt.Errorf("empty body in compressor response")
	}

	mediaType := resp.Header().Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = mimetype.Detect(data).String()
	}

	return blob.Blob{
		Name:      outputName(in.Name),
		MediaType: mediaType,
		Data:      data,
	}, nil
}

// formFields 將參數轉為表單欄位，未設定的寬高不送出
func formFields(opts Options) map[string]string {
	fields := map[string]string{
		"maxSizeMB":        strconv.FormatFloat(opts.MaxSizeMB, 'f', -1, 64),
		"useWebWorker":     strconv.FormatBool(opts.UseWebWorker),
		"initialQuality":   strconv.FormatFloat(opts.InitialQuality, 'f', -1, 64),
		"maxWidthOrHeight": strconv.Itoa(opts.MaxWidthOrHeight),
	}
	if opts.MaxWidth != nil {
		fields["maxWidth"] = strconv.Itoa(*opts.MaxWidth)
	}
	if opts.MaxHeight != nil {
		fields["maxHeight"] = strconv.Itoa(*opts.MaxHeight)
	}
	return fields
}
