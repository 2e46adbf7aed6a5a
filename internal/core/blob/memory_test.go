package blob

import (
	"context"
	"errors"
	"testing"
	"time"

	"image-compressor/internal/infrastructure/config"

	"github.com/go-redis/redis/v8"
)

func newTestStore(t *testing.T, maxEntries int, ttl time.Duration) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(config.BlobStoreConfig{
		Driver:     "memory",
		MaxEntries: maxEntries,
		TTL:        ttl,
	})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMemoryStorePutGet(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)
	ctx := context.Background()

	key, err := s.Put(ctx, Blob{Name: "a.png", MediaType: "image/png", Data: []byte("abc")})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if key == "" {
		t.Fatal("Expected non-empty key")
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "a.png" || got.MediaType != "image/png" || string(got.Data) != "abc" {
		t.Errorf("Unexpected blob %+v", got)
	}

	st := s.Stats()
	if st.Entries != 1 || st.Bytes != 3 || st.Hits != 1 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestMemoryStoreGet_Miss(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if s.Stats().Misses != 1 {
		t.Errorf("Expected one miss")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := newTestStore(t, 10, time.Hour)
	ctx := context.Background()

	key, _ := s.Put(ctx, Blob{Data: []byte("abc")})
	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("Deleting twice should not fail: %v", err)
	}
	if s.Stats().Bytes != 0 {
		t.Errorf("Expected byte count to drop to zero")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := newTestStore(t, 10, time.Minute)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	key, _ := s.Put(ctx, Blob{Data: []byte("abc")})

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected expired blob to be gone, got %v", err)
	}
	if s.Stats().Evictions != 1 {
		t.Errorf("Expected one eviction, got %d", s.Stats().Evictions)
	}
}

func TestMemoryStoreFull_KeepsLiveRefs(t *testing.T) {
	s := newTestStore(t, 2, time.Minute)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	first, _ := s.Put(ctx, Blob{Data: []byte("1")})
	second, _ := s.Put(ctx, Blob{Data: []byte("2")})

	if _, err := s.Put(ctx, Blob{Data: []byte("3")}); !errors.Is(err, ErrFull) {
		t.Fatalf("Expected ErrFull, got %v", err)
	}
	for _, key := range []string{first, second} {
		if _, err := s.Get(ctx, key); err != nil {
			t.Errorf("Live ref %s must survive a full store: %v", key, err)
		}
	}
	if s.Stats().Rejected != 1 {
		t.Errorf("Expected one rejected put, got %d", s.Stats().Rejected)
	}

	// 過期條目可讓出空間
	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	if _, err := s.Put(ctx, Blob{Data: []byte("3")}); err != nil {
		t.Errorf("Expected expired refs to make room, got %v", err)
	}
}

func TestMemoryStoreSlidingExpiry(t *testing.T) {
	s := newTestStore(t, 10, time.Minute)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	read, _ := s.Put(ctx, Blob{Data: []byte("read")})
	touched, _ := s.Put(ctx, Blob{Data: []byte("touched")})
	idle, _ := s.Put(ctx, Blob{Data: []byte("idle")})

	s.now = func() time.Time { return now.Add(45 * time.Second) }
	if _, err := s.Get(ctx, read); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := s.Touch(ctx, touched, "missing"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}

	s.now = func() time.Time { return now.Add(90 * time.Second) }
	for _, key := range []string{read, touched} {
		if _, err := s.Get(ctx, key); err != nil {
			t.Errorf("Expected %s to be kept alive, got %v", key, err)
		}
	}
	if _, err := s.Get(ctx, idle); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected idle blob to expire, got %v", err)
	}
}

func TestRedisKeyPrefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	s := newRedisStore(client, "imgc:blob:", time.Minute)
	if got := s.redisKey("abc"); got != "imgc:blob:abc" {
		t.Errorf("Expected prefixed key, got %s", got)
	}
}

func TestBlobSizes(t *testing.T) {
	b := Blob{Data: make([]byte, 2048)}
	if b.Size() != 2048 {
		t.Errorf("Expected 2048, got %d", b.Size())
	}
	if b.SizeKB() != 2 {
		t.Errorf("Expected 2 KB, got %v", b.SizeKB())
	}
	if b.SizeMB() != 2.0/1024 {
		t.Errorf("Unexpected MB size %v", b.SizeMB())
	}
}
