package blob

import (
	"context"
	"fmt"
	"time"

	"image-compressor/internal/infrastructure/config"
	"image-compressor/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	fieldName      = "name"
	fieldMediaType = "media_type"
	fieldData      = "data"
)

// RedisStore 以 Redis hash 保存內容，過期交給 Redis TTL
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 創建 Redis 儲存並測試連線
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("參照儲存已初始化",
		zap.String("driver", "redis"),
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", ttl),
	)

	return newRedisStore(client, cfg.Prefix, ttl), nil
}

func newRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Put 存入內容並回傳新參照
func (s *RedisStore) Put(ctx context.Context, b Blob) (string, error) {
	key := common.GenerateUUID()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.redisKey(key),
			fieldName, b.Name,
			fieldMediaType, b.MediaType,
			fieldData, b.Data,
		)
		pipe.Expire(ctx, s.redisKey(key), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}

	return key, nil
}

// Get 取得內容並延長存活時間
func (s *RedisStore) Get(ctx context.Context, key string) (Blob, error) {
	var get *redis.StringStringMapCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGetAll(ctx, s.redisKey(key))
		pipe.Expire(ctx, s.redisKey(key), s.ttl)
		return nil
	})
	if err != nil {
		return Blob{}, fmt.Errorf("failed to get blob: %w", err)
	}
	values := get.Val()
	// HGETALL 對不存在的鍵回傳空集合
	if len(values) == 0 {
		return Blob{}, ErrNotFound
	}

	return Blob{
		Name:      values[fieldName],
		MediaType: values[fieldMediaType],
		Data:      []byte(values[fieldData]),
	}, nil
}

// Touch 延長參照的存活時間，EXPIRE 對不存在的鍵不做任何事
func (s *RedisStore) Touch(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Expire(ctx, s.redisKey(key), s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to touch blobs: %w", err)
	}
	return nil
}

// Delete 撤銷參照
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Ping 檢查連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 關閉連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// redisKey 生成 Redis 鍵
func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}
