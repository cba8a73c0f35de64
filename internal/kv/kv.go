// Package kv is the durable key-value store behind values that outlive a
// session's in-memory state, such as the chosen username.
package kv

import "context"

type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Namespace prefixes every key so that unrelated owners can share a Store.
type Namespace struct {
	store  Store
	prefix string
}

func NewNamespace(store Store, name string) Namespace {
	return Namespace{store: store, prefix: name + ":"}
}

func (n Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n Namespace) Set(ctx context.Context, key, value string) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n Namespace) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}
