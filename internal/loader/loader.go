// Package loader fetches the movie list for a (query, username) pair and
// commits it to a session's store. Only the most recently issued load may
// commit; older ones are canceled and their results discarded.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/domain/ports"
	"moviecatalog/internal/metrics"
	"moviecatalog/internal/movies"
)

// ErrCanceled is returned by a load that was superseded or torn down
// before it could commit.
var ErrCanceled = errors.New("load canceled")

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

type Orchestrator struct {
	search  ports.SearchSource
	records ports.RecordSource
	store   *movies.Store
	logger  *slog.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// ticket identifies one issued load.
type ticket struct {
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns an orchestrator committing to store. records is expected to
// soft-fail; any error it does return fails the load. Store subscribers are
// notified while the orchestrator lock is held and must not call back into
// it.
func New(search ports.SearchSource, records ports.RecordSource, store *movies.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		search:  search,
		records: records,
		store:   store,
		logger:  slog.Default(),
		tracer:  otel.Tracer("moviecatalog/loader"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Load cancels the previous load, fetches and merges the list and commits
// it if no newer load has been issued meanwhile.
func (o *Orchestrator) Load(ctx context.Context, query, username string) ([]domain.Movie, error) {
	t, err := o.issue(ctx, false)
	if err != nil {
		return nil, err
	}
	return o.run(t, query, username)
}

// Start issues a load immediately and runs it in the background.
func (o *Orchestrator) Start(query, username string) {
	t, err := o.issue(context.Background(), true)
	if err != nil {
		return
	}
	go func() {
		defer o.wg.Done()
		if _, err := o.run(t, query, username); err != nil && !errors.Is(err, ErrCanceled) {
			o.logger.Warn("movie list load failed",
				slog.String("query", query),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until every background load has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels the outstanding load and waits for background loads to
// return. Later loads are rejected with ErrCanceled.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()
	o.wg.Wait()
}

// issue supersedes the current load. Tracked loads are added to the wait
// group under the lock so that Close never misses one.
func (o *Orchestrator) issue(parent context.Context, tracked bool) (ticket, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ticket{}, ErrCanceled
	}
	if tracked {
		o.wg.Add(1)
	}
	if o.cancel != nil {
		o.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	o.seq++
	o.cancel = cancel
	o.store.BeginLoad()
	return ticket{seq: o.seq, ctx: ctx, cancel: cancel}, nil
}

func (o *Orchestrator) run(t ticket, query, username string) ([]domain.Movie, error) {
	defer t.cancel()
	username = strings.TrimSpace(username)

	ctx, span := o.tracer.Start(t.ctx, "loader.Load", trace.WithAttributes(
		attribute.String("movies.query", query),
		attribute.Bool("movies.has_username", username != ""),
	))
	defer span.End()

	start := time.Now()
	list, fetchErr := o.fetch(ctx, query, username)

	o.mu.Lock()
	defer o.mu.Unlock()

	if t.seq != o.seq || t.ctx.Err() != nil {
		if t.seq == o.seq {
			// No newer load will settle the flag.
			o.store.AbandonLoad()
		}
		metrics.LoadsTotal.WithLabelValues("canceled").Inc()
		span.SetAttributes(attribute.Bool("movies.canceled", true))
		return nil, ErrCanceled
	}
	metrics.LoadDuration.Observe(time.Since(start).Seconds())

	if fetchErr != nil {
		metrics.LoadsTotal.WithLabelValues("failed").Inc()
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, fetchErr.Error())
		o.store.FailLoad(fetchErr.Error())
		return nil, fetchErr
	}

	metrics.LoadsTotal.WithLabelValues("committed").Inc()
	span.SetAttributes(attribute.Int("movies.count", len(list)))
	o.store.CommitLoad(list)
	return domain.CloneMovies(list), nil
}

func (o *Orchestrator) fetch(ctx context.Context, query, username string) ([]domain.Movie, error) {
	if username == "" {
		results, err := o.search.Search(ctx, query)
		if err != nil {
			return nil, err
		}
		return movies.Unfavorited(results), nil
	}

	var results, records []domain.Movie
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = o.records.UserMovies(gctx, username)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = o.search.Search(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return movies.Merge(results, records), nil
}
