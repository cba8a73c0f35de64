package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"moviecatalog/internal/domain"
)

const redisCachePrefix = "moviesync:search:"

// RedisCacheBackend stores search results in Redis as JSON.
type RedisCacheBackend struct {
	client *redis.Client
}

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (r *RedisCacheBackend) Get(ctx context.Context, key string) ([]domain.Movie, bool, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var movies []domain.Movie
	if err := json.Unmarshal(data, &movies); err != nil {
		return nil, false, err
	}
	return movies, true, nil
}

func (r *RedisCacheBackend) Set(ctx context.Context, key string, movies []domain.Movie, ttl time.Duration) error {
	data, err := json.Marshal(movies)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err()
}

func (r *RedisCacheBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
