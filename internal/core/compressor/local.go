package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"image-compressor/internal/core/blob"
	"image-compressor/internal/core/queue"
	"image-compressor/internal/pkg/common"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // 支援 WebP
)

const (
	// 品質下限，低於此值改為縮小尺寸
	minQuality = 0.1
	// 每次迭代的縮減比例
	stepFactor = 0.9
)

// Local 在本程序內解碼、縮放與重新編碼
type Local struct {
	queue        *queue.Manager
	maxIteration int
}

// NewLocal 創建本地壓縮函式，q 為 nil 時一律在呼叫端協程執行
func NewLocal(q *queue.Manager, maxIteration int) *Local {
	if maxIteration <= 0 {
		maxIteration = 10
	}
	return &Local{
		queue:        q,
		maxIteration: maxIteration,
	}
}

// Compress 實作 Compressor，UseWebWorker 時交由工作隊列執行
func (l *Local) Compress(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error) {
	if err := opts.Validate(); err != nil {
		return blob.Blob{}, fmt.Errorf("invalid options: %w", err)
	}

	if opts.UseWebWorker && l.queue != nil {
		return l.queue.Submit(ctx, func(ctx context.Context) (blob.Blob, error) {
			return l.compress(ctx, in, opts)
		})
	}
	return l.compress(ctx, in, opts)
}

func (l *Local) compress(ctx context.Context, in blob.Blob, opts Options) (blob.Blob, error) {
	start := time.Now()

	src, err := imaging.Decode(bytes.NewReader(in.Data), imaging.AutoOrientation(true))
	if err != nil {
		return blob.Blob{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := targetSize(bounds.Dx(), bounds.Dy(), opts)
	maxBytes := int64(opts.MaxSizeMB * 1024 * 1024)
	quality := opts.InitialQuality

	// 不需縮放、品質為 1 且已小於上限時直接回傳原檔
	if width == bounds.Dx() && height == bounds.Dy() && quality >= 1 && in.Size() <= maxBytes {
		return in, nil
	}

	img := flatten(imaging.Resize(src, width, height, imaging.Lanczos))
	best, err := encodeJPEG(img, quality)
	if err != nil {
		return blob.Blob{}, err
	}

	iterations := 1
	for ; iterations < l.maxIteration && int64(len(best)) > maxBytes; iterations++ {
		if err := ctx.Err(); err != nil {
			return blob.Blob{}, err
		}

		if quality > minQuality {
			quality = math.Max(minQuality, quality*stepFactor)
		} else {
			width = max(1, int(math.Round(float64(width)*stepFactor)))
			height = max(1, int(math.Round(float64(height)*stepFactor)))
			img = flatten(imaging.Resize(src, width, height, imaging.Lanczos))
		}

		out, err := encodeJPEG(img, quality)
		if err != nil {
			return blob.Blob{}, err
		}
		if len(out) < len(best) {
			best = out
		}
	}

	common.LogImageProcessing("debug",
		zap.String("source", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy())),
		zap.String("target", fmt.Sprintf("%dx%d", width, height)),
		zap.Int("iterations", iterations),
		zap.Float64("final_quality", quality),
		zap.String("before", humanize.Bytes(uint64(in.Size()))),
		zap.String("after", humanize.Bytes(uint64(len(best)))),
		zap.Duration("elapsed", time.Since(start)),
	)

	return blob.Blob{
		Name:      outputName(in.Name),
		MediaType: "image/jpeg",
		Data:      best,
	}, nil
}

// targetSize 依上限等比例縮小，不放大
func targetSize(w, h int, opts Options) (int, int) {
	limitW, limitH := w, h
	if opts.MaxWidthOrHeight > 0 {
		limitW = min(limitW, opts.MaxWidthOrHeight)
		limitH = min(limitH, opts.MaxWidthOrHeight)
	}
	if opts.MaxWidth != nil && *opts.MaxWidth > 0 {
		limitW = min(limitW, *opts.MaxWidth)
	}
	if opts.MaxHeight != nil && *opts.MaxHeight > 0 {
		limitH = min(limitH, *opts.MaxHeight)
	}

	scale := math.Min(float64(limitW)/float64(w), float64(limitH)/float64(h))
	if scale >= 1 {
		return w, h
	}
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}

// flatten 將透明區域合成到白色背景
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// encodeJPEG quality 範圍 (0, 1]
func encodeJPEG(img image.Image, quality float64) ([]byte, error) {
	q := int(math.Round(quality * 100))
	q = max(1, min(100, q))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, fmt.Errorf("failed to encode image as JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
