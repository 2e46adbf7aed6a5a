package blob

import (
	"context"
	"sync"
	"time"

	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// MemoryStore 記憶體儲存，條目在最後一次存取後 TTL 過期
type MemoryStore struct {
	config config.BlobStoreConfig
	mu     sync.Mutex
	store  map[string]*entry
	stats  stats
	bytes  int64
	done   chan struct{}
	once   sync.Once
	now    func() time.Time
}

// entry 儲存條目
type entry struct {
	blob       Blob
	expiresAt  time.Time
	createdAt  time.Time
	lastAccess time.Time
}

// stats 儲存統計
type stats struct {
	hits      int64
	misses    int64
	evictions int64
	rejected  int64
}

// Stats 對外統計資料
type Stats struct {
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Rejected  int64 `json:"rejected"`
}

// NewMemoryStore 創建記憶體儲存並啟動清理協程
func NewMemoryStore(cfg config.BlobStoreConfig) *MemoryStore {
	s := &MemoryStore{
		config: cfg,
		store:  make(map[string]*entry),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	if cfg.CleanupInterval > 0 {
		go s.startCleanup()
	}

	common.LogInfo("參照儲存已初始化",
		zap.String("driver", "memory"),
		zap.Int("max_entries", cfg.MaxEntries),
		zap.Duration("ttl", cfg.TTL),
	)

	return s
}

// Put 存入內容並回傳新參照
func (s *MemoryStore) Put(ctx context.Context, b Blob) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.MaxEntries > 0 && len(s.store) >= s.config.MaxEntries {
		if evicted := s.cleanup(); evicted > 0 {
			common.LogDebug("參照清理執行", zap.Int("evicted", evicted))
		}
		if len(s.store) >= s.config.MaxEntries {
			s.stats.rejected++
			common.LogWarn("參照儲存已滿",
				zap.Int("entries", len(s.store)),
				zap.String("bytes", humanize.Bytes(uint64(s.bytes))),
			)
			return "", ErrFull
		}
	}

	key := common.GenerateUUID()
	now := s.now()
	s.store[key] = &entry{
		blob:       b,
		expiresAt:  now.Add(s.config.TTL),
		createdAt:  now,
		lastAccess: now,
	}
	s.bytes += b.Size()

	common.LogDebug("參照已儲存",
		zap.String("key", key),
		zap.String("media_type", b.MediaType),
		zap.String("size", humanize.Bytes(uint64(b.Size()))),
	)
	return key, nil
}

// Get 取得內容
func (s *MemoryStore) Get(ctx context.Context, key string) (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.store[key]
	if !ok {
		s.stats.misses++
		return Blob{}, ErrNotFound
	}

	now := s.now()
	if now.After(e.expiresAt) {
		s.remove(key)
		s.stats.evictions++
		s.stats.misses++
		return Blob{}, ErrNotFound
	}

	e.lastAccess = now
	e.expiresAt = now.Add(s.config.TTL)
	s.stats.hits++
	return e.blob, nil
}

// Touch 延長參照的存活時間，不存在或已過期的鍵略過
func (s *MemoryStore) Touch(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, key := range keys {
		e, ok := s.store[key]
		if !ok || now.After(e.expiresAt) {
			continue
		}
		e.expiresAt = now.Add(s.config.TTL)
	}
	return nil
}

// Delete 撤銷參照，不存在時不視為錯誤
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remove(key)
	return nil
}

// remove 呼叫端需持有鎖
func (s *MemoryStore) remove(key string) {
	if e, ok := s.store[key]; ok {
		s.bytes -= e.blob.Size()
		delete(s.store, key)
	}
}

// startCleanup 定期清理過期條目
func (s *MemoryStore) startCleanup() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			s.cleanup()
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

// cleanup 清理過期條目，呼叫端需持有鎖
func (s *MemoryStore) cleanup() int {
	now := s.now()
	count := 0

	for key, e := range s.store {
		if now.After(e.expiresAt) {
			s.remove(key)
			count++
			s.stats.evictions++
		}
	}

	if count > 0 {
		common.LogInfo("Cleaned up expired blobs",
			zap.Int("count", count),
			zap.Int64("total_evictions", s.stats.evictions),
			zap.Int("remaining_size", len(s.store)),
		)
	}

	return count
}

// Stats 取得統計資料
func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Entries:   len(s.store),
		Bytes:     s.bytes,
		Hits:      s.stats.hits,
		Misses:    s.stats.misses,
		Evictions: s.stats.evictions,
		Rejected:  s.stats.rejected,
	}
}

// Close 停止清理並清空內容
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.done)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	common.LogInfo("參照儲存已關閉",
		zap.Int64("hits", s.stats.hits),
		zap.Int64("misses", s.stats.misses),
		zap.Int64("evictions", s.stats.evictions),
		zap.String("released", humanize.Bytes(uint64(s.bytes))),
	)
	s.store = make(map[string]*entry)
	s.bytes = 0
	return nil
}
