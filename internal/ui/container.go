package ui

import (
	"context"
	"log/slog"
	"sync"

	"moviecatalog/internal/kv"
)

const usernameKey = "username"

// Container owns one session's State. Every change goes through Dispatch;
// only the username is written to the durable store.
type Container struct {
	// dispatchMu orders whole dispatches, side effects included.
	dispatchMu sync.Mutex
	mu         sync.RWMutex
	state      State
	store      kv.Store
	logger     *slog.Logger
	nextSubID  int
	subs       map[int]func(prev, next State)
}

// NewContainer restores the username from store. A read failure starts the
// session without one.
func NewContainer(ctx context.Context, store kv.Store, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{store: store, logger: logger, subs: make(map[int]func(prev, next State))}
	if store == nil {
		return c
	}
	username, ok, err := store.Get(ctx, usernameKey)
	if err != nil {
		logger.Warn("restore username failed", slog.String("error", err.Error()))
		return c
	}
	if ok {
		c.state = Reduce(c.state, SetUsername(username))
	}
	return c
}

func (c *Container) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Dispatch applies a, persists a changed username and notifies
// subscribers. It returns the new state. Concurrent dispatches run one at a
// time, so persistence and notifications follow the order of the state
// changes. Subscribers must not dispatch.
func (c *Container) Dispatch(ctx context.Context, a Action) State {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	prev := c.state
	next := Reduce(prev, a)
	c.state = next
	subs := make([]func(prev, next State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if prev == next {
		return next
	}
	if prev.Username != next.Username {
		c.persistUsername(ctx, next.Username)
	}
	for _, fn := range subs {
		fn(prev, next)
	}
	return next
}

// Subscribe registers fn for every effective state change and returns a
// function that removes it.
func (c *Container) Subscribe(fn func(prev, next State)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Container) persistUsername(ctx context.Context, username string) {
	if c.store == nil {
		return
	}
	var err error
	if username == "" {
		err = c.store.Delete(ctx, usernameKey)
	} else {
		err = c.store.Set(ctx, usernameKey, username)
	}
	if err != nil {
		c.logger.Error("persist username failed", slog.String("error", err.Error()))
	}
}
