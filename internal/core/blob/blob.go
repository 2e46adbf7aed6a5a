// Package blob 保存上傳與壓縮後的二進位內容，並以參照鍵提供給頁面顯示。
package blob

import (
	"context"
	"errors"
	"fmt"

	"image-compressor/internal/infrastructure/config"
)

var (
	// ErrNotFound 參照不存在、已過期或已撤銷
	ErrNotFound = errors.New("blob not found")
	// ErrFull 儲存已滿，仍在使用的參照不會被淘汰
	ErrFull = errors.New("blob store is full")
)

// Blob 記憶體中的檔案內容
type Blob struct {
	Name      string
	MediaType string
	Data      []byte
}

// Size 位元組數
func (b Blob) Size() int64 {
	return int64(len(b.Data))
}

// SizeMB 以 MB 表示的大小
func (b Blob) SizeMB() float64 {
	return float64(len(b.Data)) / 1024 / 1024
}

// SizeKB 以 KB 表示的大小
func (b Blob) SizeKB() float64 {
	return float64(len(b.Data)) / 1024
}

// Store 顯示參照儲存，Put 回傳的鍵即為參照。
// 參照的存活期間由擁有者以 Get 或 Touch 延長，撤銷則呼叫 Delete。
type Store interface {
	Put(ctx context.Context, b Blob) (string, error)
	Get(ctx context.Context, key string) (Blob, error)
	Touch(ctx context.Context, keys ...string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// NewStore 依設定建立儲存
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.BlobStore.Driver {
	case "memory":
		return NewMemoryStore(cfg.BlobStore), nil
	case "redis":
		return NewRedisStore(cfg.Redis, cfg.BlobStore.TTL)
	default:
		return nil, fmt.Errorf("unknown blobstore driver: %s", cfg.BlobStore.Driver)
	}
}
