package intent

import (
	"context"
	"log/slog"

	"moviecatalog/internal/domain"
	"moviecatalog/internal/metrics"
)

// Write-backs run after the local change is applied. A failure is logged
// and counted; the local change stays.

func (g *Gate) persistUpsert(username string, movie domain.Movie) {
	if g.writer == nil {
		return
	}
	g.persist("upsert", username, movie.ID, func(ctx context.Context) error {
		return g.writer.Upsert(ctx, username, movie)
	})
}

func (g *Gate) persistDelete(username, movieID string) {
	if g.writer == nil {
		return
	}
	g.persist("delete", username, movieID, func(ctx context.Context) error {
		return g.writer.Delete(ctx, username, movieID)
	})
}

func (g *Gate) persist(op, username, movieID string, write func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.persistTimeout)
		defer cancel()
		if err := write(ctx); err != nil {
			metrics.PersistFailuresTotal.WithLabelValues(op).Inc()
			g.logger.Error("persist user movie failed",
				slog.String("op", op),
				slog.String("username", username),
				slog.String("movie_id", movieID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
