package kv

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory keeps values in process. Values survive sessions but not
// restarts; a zero ttl keeps them forever.
type Memory struct {
	items *cache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	expiry := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiry = ttl
		cleanup = ttl
	}
	return &Memory{items: cache.New(expiry, cleanup)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.items.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.items.Set(key, value, cache.DefaultExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}
