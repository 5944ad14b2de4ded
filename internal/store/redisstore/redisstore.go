package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/ai-chat/internal/catalog"
)

const catalogKeyPrefix = "chat:catalog:models:"

type Store struct {
	rdb        *redis.Client
	catalogTTL time.Duration
}

func New(addr, password string, db int, catalogTTL time.Duration) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), catalogTTL)
}

func NewWithClient(rdb *redis.Client, catalogTTL time.Duration) *Store {
	if catalogTTL <= 0 {
		catalogTTL = 5 * time.Minute
	}
	return &Store{rdb: rdb, catalogTTL: catalogTTL}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Get returns nil, nil for a missing key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Put stores data without expiry; sessions live until deleted.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.rdb.Set(ctx, key, data, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Catalogs are keyed by provider name.
func (s *Store) GetCatalog(ctx context.Context, provider string) ([]catalog.Model, bool, error) {
	b, err := s.Get(ctx, catalogKeyPrefix+provider)
	if err != nil || b == nil {
		return nil, false, err
	}
	var models []catalog.Model
	if err := json.Unmarshal(b, &models); err != nil {
		return nil, false, err
	}
	return models, true, nil
}

func (s *Store) PutCatalog(ctx context.Context, provider string, models []catalog.Model) error {
	b, err := json.Marshal(models)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, catalogKeyPrefix+provider, b, s.catalogTTL).Err()
}
