package redisstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"docgen/internal/config"
	"docgen/internal/model"
	"docgen/internal/repository"
)

// kv is the subset of *redis.Client the store needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RegistryRedis keeps the registry as one JSON value under a Redis key.
type RegistryRedis struct {
	client kv
	key    string
}

// NewClient builds a go-redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// NewRegistryRedis wraps an existing client.
func NewRegistryRedis(client kv, key string) *RegistryRedis {
	if key == "" {
		key = repository.DefaultKey
	}
	return &RegistryRedis{client: client, key: key}
}

var _ repository.RegistryStore = (*RegistryRedis)(nil)

func (r *RegistryRedis) Load(ctx context.Context) ([]model.Document, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.Document{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return repository.DecodeDocuments(raw)
}

func (r *RegistryRedis) Save(ctx context.Context, docs []model.Document) error {
	data, err := repository.EncodeDocuments(docs)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RegistryRedis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
